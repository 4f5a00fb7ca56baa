package internal

import (
	"sync"

	"github.com/pior/collector/buffer"
)

// BufferPool recycles buffers of a fixed initial size.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool(initialSize int, opts ...buffer.Option) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return buffer.New(initialSize, opts...)
			},
		},
	}
}

func (p *BufferPool) Get() *buffer.Buffer {
	return p.pool.Get().(*buffer.Buffer)
}

func (p *BufferPool) Put(buf *buffer.Buffer) {
	buf.ConsumeAll()
	p.pool.Put(buf)
}
