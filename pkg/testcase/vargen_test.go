package testcase

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandLiteralText(t *testing.T) {
	out, err := Expand("hello world", nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestExpandVariableSubstitution(t *testing.T) {
	vars := Vars{"n": ParseVarValue("42")}
	out, err := Expand("<n> items", vars, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "42 items", out)
}

func TestExpandUndefinedVariableErrors(t *testing.T) {
	_, err := Expand("<missing>", nil, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestExpandIntRangeWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		out, err := Expand("[1..10]", nil, rng)
		require.NoError(t, err)
		assert.Contains(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, out)
	}
}

func TestExpandCharRangeWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	out, err := Expand("['a'..'e']", nil, rng)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.GreaterOrEqual(t, out[0], byte('a'))
	assert.LessOrEqual(t, out[0], byte('e'))
}

func TestExpandFloatRangeWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	out, err := Expand("[0.0..1.0]a", nil, rng)
	require.NoError(t, err)
	assert.True(t, len(out) > 0)
	assert.Contains(t, []string{"0.", "1."}, out[:2])
}

func TestExpandSelectPicksOneOption(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	seen := map[string]bool{}
	for i := 0; i < 40; i++ {
		out, err := Expand("(red|green|blue)", nil, rng)
		require.NoError(t, err)
		seen[out] = true
	}
	for k := range seen {
		assert.Contains(t, []string{"red", "green", "blue"}, k)
	}
}

func TestExpandRandomHexProducesEightHexDigits(t *testing.T) {
	out, err := Expand("@", nil, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	assert.Len(t, out, 8)
	for _, c := range out {
		assert.Contains(t, hexDigits, string(c))
	}
}

func TestExpandMultipleArgsJoinedWithSpace(t *testing.T) {
	vars := Vars{"n": ParseVarValue("3"), "m": ParseVarValue("7")}
	out, err := Expand("<n> <m> fixed", vars, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "3 7 fixed", out)
}

func TestExpandInvalidRangeOrderErrors(t *testing.T) {
	_, err := Expand("[10..1]", nil, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}
