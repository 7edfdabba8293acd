package digest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfIsDeterministic(t *testing.T) {
	a, err := Of(bytes.NewBufferString("hello world"))
	require.NoError(t, err)

	b, err := Of(bytes.NewBufferString("hello world"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestOfBytesMatchesOf(t *testing.T) {
	a, err := Of(bytes.NewBufferString("payload"))
	require.NoError(t, err)

	b := OfBytes([]byte("payload"))

	assert.Equal(t, a, b)
}

func TestHolderEmptyUntilSet(t *testing.T) {
	h := NewHolder()
	assert.True(t, h.Value.Empty())

	h.Set(OfBytes([]byte("x")))
	assert.False(t, h.Value.Empty())
}
