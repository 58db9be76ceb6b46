package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// VerifyReference re-derives Verify's result by loading the whole archive
// into memory and re-checking every invariant in a structurally different
// way (no streaming, no incremental hashing) so a differential harness can
// compare its verdict against the streaming verifier's.
func VerifyReference(r io.Reader, limits VerifyLimits) (*Result, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limits.MaxBundleBytes+1))
	if err != nil {
		return nil, newVerifyError(ClassIntegrity, ErrIntegrityIo, err.Error())
	}
	if int64(len(raw)) > limits.MaxBundleBytes {
		return nil, newVerifyError(ClassLimits, ErrLimitBundleBytes, "bundle exceeds byte limit")
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, newVerifyError(ClassIntegrity, ErrIntegrityGzip, err.Error())
	}
	decoded, err := io.ReadAll(io.LimitReader(gz, limits.MaxDecodeBytes+1))
	if err != nil {
		return nil, newVerifyError(ClassIntegrity, ErrIntegrityGzip, err.Error())
	}
	if int64(len(decoded)) > limits.MaxDecodeBytes {
		return nil, newVerifyError(ClassLimits, ErrLimitDecodeBytes, "decoded bundle exceeds byte limit")
	}

	files := map[string][]byte{}
	var order []string
	tr := tar.NewReader(bytes.NewReader(decoded))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newVerifyError(ClassIntegrity, ErrIntegrityTar, err.Error())
		}
		if len(hdr.Name) > limits.MaxPathLen {
			return nil, newVerifyError(ClassLimits, ErrLimitPathLength, "path too long")
		}
		if strings.HasPrefix(hdr.Name, "/") || strings.Contains(hdr.Name, "..") {
			return nil, newVerifyError(ClassSecurity, ErrSecurityPathTraversal, fmt.Sprintf("invalid path %q", hdr.Name))
		}
		if _, dup := files[hdr.Name]; dup {
			return nil, newVerifyError(ClassContract, ErrContractDuplicateFile, fmt.Sprintf("duplicate file %q", hdr.Name))
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, newVerifyError(ClassIntegrity, ErrIntegrityIo, err.Error())
		}
		files[hdr.Name] = content
		order = append(order, hdr.Name)
	}

	if len(order) == 0 || order[0] != "manifest.json" {
		return nil, newVerifyError(ClassContract, ErrContractFileOrder, "first file must be 'manifest.json'")
	}
	for _, name := range order {
		if !allowedFiles[name] {
			return nil, newVerifyError(ClassContract, ErrContractUnexpectedFile, fmt.Sprintf("unexpected file %q", name))
		}
	}

	manifestBytes, ok := files["manifest.json"]
	if !ok {
		return nil, newVerifyError(ClassContract, ErrContractMissingManifest, "missing manifest.json")
	}
	if int64(len(manifestBytes)) > limits.MaxManifestBytes {
		return nil, newVerifyError(ClassLimits, ErrLimitFileSize, "manifest.json exceeds size limit")
	}
	manifest, err := decodeManifest(manifestBytes)
	if err != nil {
		return nil, newVerifyError(ClassContract, ErrContractInvalidJSON, err.Error())
	}
	if manifest.SchemaVersion != SchemaVersion {
		return nil, newVerifyError(ClassContract, ErrContractSchemaVersion, "unsupported schema version")
	}

	eventsBytes, ok := files["events.ndjson"]
	if !ok {
		return nil, newVerifyError(ClassContract, ErrContractMissingFile, "missing events.ndjson")
	}
	fileMeta, ok := manifest.Files["events.ndjson"]
	if !ok {
		return nil, newVerifyError(ClassContract, ErrContractMissingFile, "manifest missing 'events.ndjson'")
	}
	if int64(len(eventsBytes)) != fileMeta.Bytes {
		return nil, newVerifyError(ClassIntegrity, ErrIntegrityFileSizeMismatch, "events.ndjson byte count mismatch")
	}
	if int64(len(eventsBytes)) > limits.MaxEventsBytes {
		return nil, newVerifyError(ClassLimits, ErrLimitFileSize, "events.ndjson exceeds size limit")
	}

	actualHash := "sha256:" + hex.EncodeToString(sha256Sum(eventsBytes))
	if actualHash != normalizeHash(fileMeta.SHA256) {
		return nil, newVerifyError(ClassIntegrity, ErrIntegrityManifestHash, "events.ndjson hash mismatch")
	}

	lines := splitLines(eventsBytes)
	if bytes.HasPrefix(eventsBytes, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, newVerifyError(ClassContract, ErrContractInvalidJSON, "BOM not allowed in NDJSON")
	}

	type eventHash struct {
		event Event
		hash  string
	}
	var pairs []eventHash
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		if len(line) > limits.MaxLineBytes {
			return nil, newVerifyError(ClassLimits, ErrLimitLineBytes, fmt.Sprintf("line %d exceeds byte limit", i))
		}
		ev, err := decodeEvent(line)
		if err != nil {
			return nil, newVerifyError(ClassContract, ErrContractInvalidJSON, err.Error())
		}
		if ev.SpecVersion != "1.0" {
			return nil, newVerifyError(ClassContract, ErrContractSchemaVersion, "invalid specversion")
		}
		computed, err := computeContentHash(ev)
		if err != nil {
			return nil, newVerifyError(ClassIntegrity, ErrIntegrityEventHash, err.Error())
		}
		if normalizeHash(ev.ContentHash) != computed {
			return nil, newVerifyError(ClassIntegrity, ErrIntegrityEventHash, fmt.Sprintf("content hash mismatch at seq %d", ev.Seq))
		}
		if ev.RunID != manifest.RunID {
			return nil, newVerifyError(ClassContract, ErrContractRunIDMismatch, "inconsistent run_id")
		}
		pairs = append(pairs, eventHash{event: ev, hash: computed})
	}

	if len(pairs) > limits.MaxEvents {
		return nil, newVerifyError(ClassLimits, ErrLimitTotalEvents, "event count exceeds limit")
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].event.Seq < pairs[j].event.Seq })
	contentHashes := make([]string, len(pairs))
	for i, p := range pairs {
		if p.event.Seq != uint64(i) {
			if i == 0 {
				return nil, newVerifyError(ClassContract, ErrContractSequenceStart, "first event must have seq=0")
			}
			return nil, newVerifyError(ClassContract, ErrContractSequenceGap, "sequence gap")
		}
		contentHashes[i] = p.hash
	}

	if len(pairs) != manifest.EventCount {
		return nil, newVerifyError(ClassContract, ErrContractSequenceGap, "event count mismatch")
	}

	runRoot := computeRunRoot(contentHashes)
	if runRoot != manifest.RunRoot {
		return nil, newVerifyError(ClassIntegrity, ErrIntegrityRunRootMismatch, "run root mismatch")
	}

	return &Result{Manifest: *manifest, EventCount: len(pairs), ComputedRunRoot: runRoot}, nil
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func splitLines(b []byte) [][]byte {
	trimmed := bytes.TrimSuffix(b, []byte("\n"))
	if len(trimmed) == 0 {
		return nil
	}
	return bytes.Split(trimmed, []byte("\n"))
}
