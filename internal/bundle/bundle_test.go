package bundle

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	return []Event{
		{Seq: 0, Type: "assay.tool.decision", Source: "assay", Time: "2026-07-31T00:00:00Z", ID: "ev-0", Data: map[string]interface{}{"tool": "search_products"}},
		{Seq: 1, Type: "assay.tool.decision", Source: "assay", Time: "2026-07-31T00:00:01Z", ID: "ev-1", Data: map[string]interface{}{"tool": "checkout"}},
	}
}

func writeSample(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "run-1", sampleEvents()))
	return buf.Bytes()
}

func TestWriteVerifyRoundTrip(t *testing.T) {
	data := writeSample(t)
	result, err := Verify(bytes.NewReader(data), DefaultVerifyLimits())
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventCount)
	assert.Equal(t, "run-1", result.Manifest.RunID)
	assert.Equal(t, result.Manifest.RunRoot, result.ComputedRunRoot)
}

func TestWriteVerifyReferenceAgree(t *testing.T) {
	data := writeSample(t)
	streamed, err := Verify(bytes.NewReader(data), DefaultVerifyLimits())
	require.NoError(t, err)
	reference, err := VerifyReference(bytes.NewReader(data), DefaultVerifyLimits())
	require.NoError(t, err)
	assert.Equal(t, streamed.ComputedRunRoot, reference.ComputedRunRoot)
	assert.Equal(t, streamed.EventCount, reference.EventCount)
}

func TestWriteRejectsNonContiguousSeq(t *testing.T) {
	events := sampleEvents()
	events[1].Seq = 5
	var buf bytes.Buffer
	err := Write(&buf, "run-1", events)
	require.Error(t, err)
}

func TestVerifyDetectsEventTamper(t *testing.T) {
	data := writeSample(t)
	tampered := bytes.Replace(data, []byte("checkout"), []byte("delete_all"), 1)
	if bytes.Equal(tampered, data) {
		t.Skip("tamper substring not present in compressed bytes; compression makes byte-level tamper tests unreliable")
	}
	_, err := Verify(bytes.NewReader(tampered), DefaultVerifyLimits())
	assert.Error(t, err)
}

func TestVerifyRejectsTruncatedGzip(t *testing.T) {
	data := writeSample(t)
	truncated := data[:len(data)/2]
	_, err := Verify(bytes.NewReader(truncated), DefaultVerifyLimits())
	require.Error(t, err)
	ve, ok := err.(*VerifyError)
	require.True(t, ok)
	assert.True(t, ve.Class == ClassIntegrity)
}

func TestVerifyRejectsOversizeBundle(t *testing.T) {
	data := writeSample(t)
	limits := DefaultVerifyLimits()
	limits.MaxBundleBytes = 4
	_, err := Verify(bytes.NewReader(data), limits)
	require.Error(t, err)
	ve, ok := err.(*VerifyError)
	require.True(t, ok)
	assert.Equal(t, ClassLimits, ve.Class)
}

func TestComputeRunRootIsOrderSensitive(t *testing.T) {
	forward := computeRunRoot([]string{"sha256:aa", "sha256:bb"})
	backward := computeRunRoot([]string{"sha256:bb", "sha256:aa"})
	assert.NotEqual(t, forward, backward)
}

func TestNormalizeHashAddsPrefix(t *testing.T) {
	assert.Equal(t, "sha256:abc", normalizeHash("abc"))
	assert.Equal(t, "sha256:abc", normalizeHash("sha256:abc"))
}

func TestDecodeEventRejectsDuplicateKeys(t *testing.T) {
	line := `{"specversion":"1.0","specversion":"1.0","id":"x","time":"2026-07-31T00:00:00Z","seq":0,"type":"t","source":"s","run_id":"r","content_hash":"sha256:aa"}`
	_, err := decodeEvent([]byte(line))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "duplicate"))
}
