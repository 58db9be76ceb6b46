package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSortsKeys(t *testing.T) {
	v := map[string]interface{}{"b": int64(1), "a": int64(2)}
	b, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(b))
}

func TestEncodeRejectsUnsafeInteger(t *testing.T) {
	_, err := Encode(map[string]interface{}{"n": MaxSafeInteger + 1})
	assert.Error(t, err)
}

func TestDigestIsStableAcrossKeyOrder(t *testing.T) {
	d1, err := Digest(map[string]interface{}{"a": int64(1), "b": int64(2)})
	require.NoError(t, err)
	d2, err := Digest(map[string]interface{}{"b": int64(2), "a": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestStrictJSONRejectsDuplicateKeyPlain(t *testing.T) {
	_, err := Decode(`{"a":1,"a":2}`)
	require.Error(t, err)
	var sjErr *StrictJSONError
	require.ErrorAs(t, err, &sjErr)
	assert.Equal(t, ErrKindDuplicateKey, sjErr.Kind)
}

func TestStrictJSONRejectsDuplicateKeyAfterEscapeDecoding(t *testing.T) {
	_, err := Decode(`{"a":1,"\u0061":2}`)
	require.Error(t, err)
	var sjErr *StrictJSONError
	require.ErrorAs(t, err, &sjErr)
	assert.Equal(t, ErrKindDuplicateKey, sjErr.Kind)
}

func TestStrictJSONAllowsSameKeyInSiblingObjects(t *testing.T) {
	_, err := Decode(`{"a":{"x":1},"b":{"x":2}}`)
	assert.NoError(t, err)
}

func TestStrictJSONRejectsLoneHighSurrogate(t *testing.T) {
	_, err := Decode(`{"a":"\ud800"}`)
	require.Error(t, err)
	var sjErr *StrictJSONError
	require.ErrorAs(t, err, &sjErr)
	assert.Equal(t, ErrKindLoneSurrogate, sjErr.Kind)
}

func TestStrictJSONAcceptsValidSurrogatePair(t *testing.T) {
	_, err := Decode(`{"a":"\ud83d\ude00"}`)
	assert.NoError(t, err)
}

func TestStrictJSONRejectsExcessiveNesting(t *testing.T) {
	open := ""
	closeStr := ""
	for i := 0; i < 66; i++ {
		open += `{"a":`
		closeStr += "}"
	}
	open += "1" + closeStr
	_, err := Decode(open)
	require.Error(t, err)
	var sjErr *StrictJSONError
	require.ErrorAs(t, err, &sjErr)
	assert.Equal(t, ErrKindNestingTooDeep, sjErr.Kind)
}

func TestYAMLEmptyInputIsNull(t *testing.T) {
	v, err := DecodeYAMLStrict("")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestYAMLRejectsAnchors(t *testing.T) {
	_, err := DecodeYAMLStrict("a: &anchor 1\nb: *anchor\n")
	assert.Error(t, err)
}

func TestYAMLRejectsMergeKeys(t *testing.T) {
	_, err := DecodeYAMLStrict("derived:\n  <<: {x: 1}\n  y: 2\n")
	assert.Error(t, err)
}

func TestYAMLRejectsFloats(t *testing.T) {
	_, err := DecodeYAMLStrict("x: 1.5\n")
	assert.Error(t, err)
}

func TestYAMLCanonicalDigestIgnoresKeyOrder(t *testing.T) {
	_, d1, err := CanonicalizeYAML("a: 1\nb: 2\n")
	require.NoError(t, err)
	_, d2, err := CanonicalizeYAML("b: 2\na: 1\n")
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
