package pool

import (
	"sync"
)

// BytesPool recycles fixed-size frame buffers between the capture readers
// and the persistence stage. Returned slices always have len == cap ==
// BufferSize.
type BytesPool struct {
	pool       sync.Pool
	BufferSize int
}

func NewBytesPool(bufferSize int) *BytesPool {
	return &BytesPool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
		BufferSize: bufferSize,
	}
}

func (p *BytesPool) GetBytes() []byte {
	return *p.pool.Get().(*[]byte)
}

// PutBytes returns a buffer to the pool. Buffers that did not come from this
// pool (wrong capacity) are discarded.
func (p *BytesPool) PutBytes(buf []byte) {
	if cap(buf) != p.BufferSize {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}
