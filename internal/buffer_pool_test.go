package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	pool := NewBufferPool(64)

	buf := pool.Get()
	assert.Equal(t, 64, buf.Cap())
	require.NoError(t, buf.WriteString("hello"))

	pool.Put(buf)

	again := pool.Get()
	assert.Equal(t, 0, again.Len(), "buffers come back empty")
}
