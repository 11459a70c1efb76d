// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package gc

import (
	"errors"
	"io"

	"github.com/valyala/bytebufferpool"
)

// ErrBodyTooLarge is returned by [ReadLimited] when the reader yields more than the allowed number of bytes.
var ErrBodyTooLarge = errors.New("gc: body exceeds size limit")

// Buffer defines the interface for a reusable byte buffer.
// It abstracts the [bytebufferpool.ByteBuffer] type to avoid direct dependencies.
type Buffer interface {
	Write(p []byte) (int, error)
	WriteString(s string) (int, error)
	WriteByte(c byte) error
	Bytes() []byte
	Len() int
	Reset()
	ReadFrom(r io.Reader) (int64, error)
}

// Pool defines the interface for buffer pooling.
// Pool implementations must be safe for concurrent use by multiple goroutines.
type Pool interface {
	Get() Buffer
	Put(b Buffer)
}

// pool wraps [bytebufferpool.Pool] to implement Pool interface.
type pool struct{ p *bytebufferpool.Pool }

// Get returns a buffer from the pool.
func (p *pool) Get() Buffer { return p.p.Get() }

// Put returns a buffer to the pool. Buffers not obtained from this pool are dropped.
func (p *pool) Put(b Buffer) {
	if buf, ok := b.(*bytebufferpool.ByteBuffer); ok {
		p.p.Put(buf)
	}
}

// Default is the buffer pool shared by the network loaders.
//
// Example usage:
//
//	buf := gc.Default.Get()
//	defer func() {
//		buf.Reset()
//		gc.Default.Put(buf)
//	}()
//	if _, err := buf.ReadFrom(resp.Body); err != nil {
//		return nil, err
//	}
var Default Pool = &pool{p: &bytebufferpool.Pool{}}

// ReadLimited reads r into a pooled buffer and returns a copy of the content.
//
// Parameters:
//   - r: Source reader (typically an HTTP response body)
//   - limit: Maximum number of bytes accepted; zero or negative disables the limit
//
// Returns:
//   - []byte: Owned copy of the data read
//   - error: Read error, or [ErrBodyTooLarge] when the limit is exceeded
//
// Thread Safety: Safe for concurrent use.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	buf := Default.Get()
	defer func() {
		buf.Reset()
		Default.Put(buf)
	}()

	src := r
	if limit > 0 {
		// One extra byte tells an exact-size body apart from an oversized one.
		src = io.LimitReader(r, limit+1)
	}

	if _, err := buf.ReadFrom(src); err != nil {
		return nil, err
	}

	if limit > 0 && int64(buf.Len()) > limit {
		return nil, ErrBodyTooLarge
	}

	return append([]byte(nil), buf.Bytes()...), nil
}
