package pool_test

import (
	"testing"

	"github.com/privstream/privrec/pkg/pool"
	"github.com/stretchr/testify/assert"
)

func TestBuffersAreFullSize(t *testing.T) {
	p := pool.NewBytesPool(64)

	buf := p.GetBytes()
	assert.Equal(t, 64, len(buf))
	assert.Equal(t, 64, cap(buf))
}

func TestShortenedBufferRestored(t *testing.T) {
	p := pool.NewBytesPool(64)

	buf := p.GetBytes()
	p.PutBytes(buf[:10])

	again := p.GetBytes()
	assert.Equal(t, 64, len(again))
}

func TestForeignBufferDiscarded(t *testing.T) {
	p := pool.NewBytesPool(64)

	// must not panic and must not poison the pool
	p.PutBytes(make([]byte, 16))

	buf := p.GetBytes()
	assert.Equal(t, 64, len(buf))
}
