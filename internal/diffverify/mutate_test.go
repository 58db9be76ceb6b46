package diffverify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitFlipChangesBytesDeterministically(t *testing.T) {
	original := []byte("a fairly long test payload to flip some bits in")
	m := BitFlip{Count: 4, Seed: 42}

	out1, err := m.Mutate(original)
	require.NoError(t, err)
	out2, err := m.Mutate(original)
	require.NoError(t, err)

	assert.Equal(t, out1, out2, "same seed must produce the same mutation")
	assert.NotEqual(t, original, out1)
	assert.Len(t, out1, len(original))
}

func TestBitFlipEmptyInputErrors(t *testing.T) {
	_, err := BitFlip{Count: 1}.Mutate(nil)
	assert.Error(t, err)
}

func TestTruncateCutsAtOffset(t *testing.T) {
	out, err := Truncate{At: 5}.Mutate([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, []byte("01234"), out)
}

func TestTruncateBeyondLengthIsNoop(t *testing.T) {
	out, err := Truncate{At: 100}.Mutate([]byte("short"))
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), out)
}

func TestInjectFileAddsExtraEntry(t *testing.T) {
	bundle, err := createTestBundle()
	require.NoError(t, err)

	mutated, err := InjectFile{Name: "extra.txt", Content: []byte("injected")}.Mutate(bundle)
	require.NoError(t, err)

	entries, err := untarGzip(mutated)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	var names []string
	for _, e := range entries {
		names = append(names, e.name)
	}
	assert.Contains(t, names, "extra.txt")
	assert.Contains(t, names, "manifest.json")
	assert.Contains(t, names, "events.ndjson")
}
