package pool

import (
	"sync"
)

// CopyBufferSize is the size of buffers used to stream part bodies to disk.
const CopyBufferSize = 256 * 1024

// BufferPool manages reusable buffers to reduce allocations.
// Copy buffers have a fixed size; part buffers are pooled per part size
// because every transfer may choose its own.
type BufferPool struct {
	copy *sync.Pool

	mu    sync.Mutex
	parts map[int]*sync.Pool
}

// NewBufferPool creates a new buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		copy: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, CopyBufferSize)
				return &buf
			},
		},
		parts: make(map[int]*sync.Pool),
	}
}

// GetCopy returns a copy buffer from the pool.
// The caller is responsible for calling PutCopy to return the buffer to the pool.
func (bp *BufferPool) GetCopy() []byte {
	bufPtr := bp.copy.Get().(*[]byte)
	return (*bufPtr)[:CopyBufferSize]
}

// PutCopy returns a copy buffer to the pool.
// The buffer should not be used after calling PutCopy.
func (bp *BufferPool) PutCopy(buf []byte) {
	if cap(buf) != CopyBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	bp.copy.Put(&buf)
}

// GetPart returns a buffer of exactly size bytes.
// The caller is responsible for calling PutPart to return the buffer to the pool.
func (bp *BufferPool) GetPart(size int) []byte {
	bufPtr := bp.partPool(size).Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutPart returns a part buffer to the pool matching its capacity.
func (bp *BufferPool) PutPart(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:cap(buf)]
	bp.partPool(cap(buf)).Put(&buf)
}

func (bp *BufferPool) partPool(size int) *sync.Pool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	p, ok := bp.parts[size]
	if !ok {
		p = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
		bp.parts[size] = p
	}
	return p
}
