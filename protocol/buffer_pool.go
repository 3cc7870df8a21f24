package protocol

import (
	"bytes"
	"sync"
)

const (
	// ReadChunkSize is the size of the per-read scratch buffer used by
	// connection read loops.
	ReadChunkSize = 4096

	// MaxPooledBuffer caps the size of buffers returned to the pool to
	// prevent memory bloat after a large frame.
	MaxPooledBuffer = 1024 * 1024
)

// bufferPool reuses byte buffers for zlib inflation and frame assembly.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// readChunkPool reuses fixed-size read buffers across connections.
var readChunkPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReadChunkSize)
		return &buf
	},
}

// GetBuffer retrieves a reset buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool. Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > MaxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// GetReadChunk retrieves a read scratch buffer from the pool.
func GetReadChunk() *[]byte {
	return readChunkPool.Get().(*[]byte)
}

// PutReadChunk returns a read scratch buffer to the pool.
func PutReadChunk(buf *[]byte) {
	if buf == nil {
		return
	}
	readChunkPool.Put(buf)
}
