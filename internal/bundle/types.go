// Package bundle implements the tamper-evident evidence bundle writer and
// verifier (C8): a gzipped tar of manifest.json + events.ndjson with a
// Merkle-style run root, grounded on
// original_source/crates/assay-evidence/src/bundle/verify.rs and
// writer_next/verify.rs.
package bundle

import (
	"fmt"

	"github.com/assay-run/assay/internal/canon"
)

// SchemaVersion is the only manifest schema version this writer/verifier
// speaks.
const SchemaVersion = 1

// Event is a CloudEvents-1.0-shaped evidence record (spec.md E1).
type Event struct {
	SpecVersion string                 `json:"specversion"`
	ID          string                 `json:"id"`
	Time        string                 `json:"time"`
	Seq         uint64                 `json:"seq"`
	Type        string                 `json:"type"`
	Subject     string                 `json:"subject,omitempty"`
	Source      string                 `json:"source"`
	RunID       string                 `json:"run_id"`
	Data        map[string]interface{} `json:"data"`
	ContentHash string                 `json:"content_hash,omitempty"`
}

// computeContentHash digests every field of e except content_hash itself.
func computeContentHash(e Event) (string, error) {
	tree := map[string]interface{}{
		"specversion": e.SpecVersion,
		"id":          e.ID,
		"time":        e.Time,
		"seq":         int64(e.Seq),
		"type":        e.Type,
		"source":      e.Source,
		"run_id":      e.RunID,
	}
	if e.Subject != "" {
		tree["subject"] = e.Subject
	}
	if e.Data != nil {
		tree["data"] = e.Data
	}
	return canon.Digest(tree)
}

// FileMeta is a manifest entry describing one archive member.
type FileMeta struct {
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// Manifest is the bundle's manifest.json contract (spec.md E3).
type Manifest struct {
	SchemaVersion int                 `json:"schema_version"`
	RunID         string              `json:"run_id"`
	EventCount    int                 `json:"event_count"`
	RunRoot       string              `json:"run_root"`
	Files         map[string]FileMeta `json:"files"`
}

// computeRunRoot hashes the concatenation of content-hash strings (as
// UTF-8 bytes, including the "sha256:" prefix) in seq order.
func computeRunRoot(contentHashes []string) string {
	var buf []byte
	for _, h := range contentHashes {
		buf = append(buf, h...)
	}
	return canon.DigestBytes(buf)
}

func normalizeHash(h string) string {
	if len(h) >= 7 && h[:7] == "sha256:" {
		return h
	}
	return "sha256:" + h
}

// decodeEvent parses a single NDJSON line under strict rules and maps the
// resulting tree onto Event, rather than trusting encoding/json's lenient
// duplicate-key and surrogate handling.
func decodeEvent(line []byte) (Event, error) {
	tree, err := canon.Decode(string(line))
	if err != nil {
		return Event{}, fmt.Errorf("bundle: invalid event json: %w", err)
	}
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return Event{}, fmt.Errorf("bundle: event is not a json object")
	}
	var e Event
	var err2 error
	e.SpecVersion, err2 = treeString(obj, "specversion", true)
	if err2 != nil {
		return Event{}, err2
	}
	e.ID, err2 = treeString(obj, "id", true)
	if err2 != nil {
		return Event{}, err2
	}
	e.Time, err2 = treeString(obj, "time", true)
	if err2 != nil {
		return Event{}, err2
	}
	e.Type, err2 = treeString(obj, "type", true)
	if err2 != nil {
		return Event{}, err2
	}
	e.Source, err2 = treeString(obj, "source", true)
	if err2 != nil {
		return Event{}, err2
	}
	e.RunID, err2 = treeString(obj, "run_id", true)
	if err2 != nil {
		return Event{}, err2
	}
	e.ContentHash, err2 = treeString(obj, "content_hash", false)
	if err2 != nil {
		return Event{}, err2
	}
	e.Subject, err2 = treeString(obj, "subject", false)
	if err2 != nil {
		return Event{}, err2
	}
	seq, err2 := treeInt(obj, "seq")
	if err2 != nil {
		return Event{}, err2
	}
	e.Seq = uint64(seq)
	if data, ok := obj["data"]; ok {
		if m, ok := data.(map[string]interface{}); ok {
			e.Data = m
		}
	}
	return e, nil
}

// decodeManifest parses manifest.json under strict rules and maps it onto
// Manifest.
func decodeManifest(content []byte) (*Manifest, error) {
	if err := canon.Validate(string(content)); err != nil {
		return nil, fmt.Errorf("bundle: invalid manifest json: %w", err)
	}
	tree, err := canon.Decode(string(content))
	if err != nil {
		return nil, err
	}
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("bundle: manifest is not a json object")
	}
	m := &Manifest{Files: map[string]FileMeta{}}
	version, err := treeInt(obj, "schema_version")
	if err != nil {
		return nil, err
	}
	m.SchemaVersion = int(version)
	m.RunID, err = treeString(obj, "run_id", true)
	if err != nil {
		return nil, err
	}
	count, err := treeInt(obj, "event_count")
	if err != nil {
		return nil, err
	}
	m.EventCount = int(count)
	m.RunRoot, err = treeString(obj, "run_root", true)
	if err != nil {
		return nil, err
	}
	filesRaw, ok := obj["files"]
	if !ok {
		return nil, fmt.Errorf("bundle: manifest missing 'files'")
	}
	filesObj, ok := filesRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("bundle: manifest 'files' is not an object")
	}
	for name, raw := range filesObj {
		fo, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("bundle: manifest file entry %q is not an object", name)
		}
		sha, err := treeString(fo, "sha256", true)
		if err != nil {
			return nil, err
		}
		bytesCount, err := treeInt(fo, "bytes")
		if err != nil {
			return nil, err
		}
		m.Files[name] = FileMeta{SHA256: sha, Bytes: bytesCount}
	}
	return m, nil
}

func treeString(obj map[string]interface{}, key string, required bool) (string, error) {
	v, ok := obj[key]
	if !ok {
		if required {
			return "", fmt.Errorf("bundle: missing required field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("bundle: field %q is not a string", key)
	}
	return s, nil
}

func treeInt(obj map[string]interface{}, key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("bundle: missing required field %q", key)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("bundle: field %q is not an integer", key)
	}
	return n, nil
}
