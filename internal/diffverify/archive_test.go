package diffverify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarGzipRoundTrip(t *testing.T) {
	entries := []tarEntry{
		{name: "manifest.json", content: []byte(`{"run_id":"x"}`)},
		{name: "events.ndjson", content: []byte(`{"id":"evt-0"}` + "\n")},
	}

	var buf bytes.Buffer
	require.NoError(t, tarGzip(&buf, entries))

	got, err := untarGzip(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "manifest.json", got[0].name)
	assert.Equal(t, entries[0].content, got[0].content)
	assert.Equal(t, "events.ndjson", got[1].name)
	assert.Equal(t, entries[1].content, got[1].content)
}

func TestUntarGzipRejectsGarbage(t *testing.T) {
	_, err := untarGzip([]byte("not a gzip stream"))
	assert.Error(t, err)
}
