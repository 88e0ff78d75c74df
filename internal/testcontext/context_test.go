package testcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ctx := map[string]interface{}{
		"testId":     "abc123",
		"scenarioId": "load-homepage",
		"count":      float64(3),
	}

	encoded, err := Encode(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, ctx, decoded)
}

func TestEncodeNilContext(t *testing.T) {
	encoded, err := Encode(nil)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, decoded)
}

func TestDecodeEmptyString(t *testing.T) {
	decoded, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, decoded)
}

func TestDecodeInvalidBase64(t *testing.T) {
	_, err := Decode("not-valid-base64!!!")
	assert.Error(t, err)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]interface{}{"a": 1, "b": 2}
	override := map[string]interface{}{"b": 3, "c": 4}

	merged := Merge(base, override)

	assert.Equal(t, map[string]interface{}{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, base)
	assert.Equal(t, map[string]interface{}{"b": 3, "c": 4}, override)
}
