package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/assay-run/assay/internal/canon"
)

var epochZero = time.Unix(0, 0).UTC()

// Write stamps content_hash on every event (in order), builds
// events.ndjson + manifest.json, and writes both into a gzipped tar with
// deterministic headers (mtime=0, uid/gid=0, mode 0o644), manifest first —
// per spec.md §4.8's writer contract.
func Write(w io.Writer, runID string, events []Event) error {
	stamped := make([]Event, len(events))
	contentHashes := make([]string, len(events))
	for i, e := range events {
		if e.Seq != uint64(i) {
			return fmt.Errorf("bundle: event at index %d has seq %d, expected contiguous seq starting at 0", i, e.Seq)
		}
		e.RunID = runID
		e.SpecVersion = "1.0"
		hash, err := computeContentHash(e)
		if err != nil {
			return fmt.Errorf("bundle: failed to hash event seq %d: %w", e.Seq, err)
		}
		e.ContentHash = hash
		stamped[i] = e
		contentHashes[i] = hash
	}

	var eventsBuf bytes.Buffer
	for _, e := range stamped {
		line, err := canon.Encode(eventToMap(e))
		if err != nil {
			return fmt.Errorf("bundle: failed to canonicalize event seq %d: %w", e.Seq, err)
		}
		eventsBuf.Write(line)
		eventsBuf.WriteByte('\n')
	}
	eventsBytes := eventsBuf.Bytes()
	eventsSHA := sha256.Sum256(eventsBytes)

	manifest := Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		EventCount:    len(stamped),
		RunRoot:       computeRunRoot(contentHashes),
		Files: map[string]FileMeta{
			"events.ndjson": {
				SHA256: "sha256:" + hex.EncodeToString(eventsSHA[:]),
				Bytes:  int64(len(eventsBytes)),
			},
		},
	}
	manifestBytes, err := canon.Encode(manifestToMap(manifest))
	if err != nil {
		return fmt.Errorf("bundle: failed to canonicalize manifest: %w", err)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	if err := writeDeterministicEntry(tw, "manifest.json", manifestBytes); err != nil {
		return err
	}
	if err := writeDeterministicEntry(tw, "events.ndjson", eventsBytes); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("bundle: failed to close tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("bundle: failed to close gzip writer: %w", err)
	}
	return nil
}

func writeDeterministicEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Size:     int64(len(content)),
		Mode:     0o644,
		Uid:      0,
		Gid:      0,
		ModTime:  epochZero,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("bundle: failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("bundle: failed to write tar content for %s: %w", name, err)
	}
	return nil
}

func eventToMap(e Event) map[string]interface{} {
	tree := map[string]interface{}{
		"specversion":  e.SpecVersion,
		"id":           e.ID,
		"time":         e.Time,
		"seq":          int64(e.Seq),
		"type":         e.Type,
		"source":       e.Source,
		"run_id":       e.RunID,
		"content_hash": e.ContentHash,
	}
	if e.Subject != "" {
		tree["subject"] = e.Subject
	}
	if e.Data != nil {
		tree["data"] = e.Data
	}
	return tree
}

func manifestToMap(m Manifest) map[string]interface{} {
	files := make(map[string]interface{}, len(m.Files))
	for name, fm := range m.Files {
		files[name] = map[string]interface{}{
			"sha256": fm.SHA256,
			"bytes":  fm.Bytes,
		}
	}
	return map[string]interface{}{
		"schema_version": int64(m.SchemaVersion),
		"run_id":         m.RunID,
		"event_count":    int64(m.EventCount),
		"run_root":       m.RunRoot,
		"files":          files,
	}
}
