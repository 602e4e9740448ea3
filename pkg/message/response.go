package message

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/cinder-go/cinder/pkg/header"
)

const (
	// DefaultTimeout bounds response emission.
	DefaultTimeout = 60 * time.Second

	// DefaultChunkSize is the size of each emitted body chunk.
	DefaultChunkSize = 1024
)

// Response is the per-connection response under construction.
type Response struct {
	// Status defaults to 200.
	Status int

	Header header.Header

	// Body is nil for an empty response.
	Body *Body

	// Timeout bounds the whole emission of start and body events.
	Timeout time.Duration

	// ChunkSize is the size of emitted body chunks.
	ChunkSize int
}

// NewResponse returns a 200 response with default timeout and chunk size.
func NewResponse() *Response {
	return &Response{
		Status:    200,
		Timeout:   DefaultTimeout,
		ChunkSize: DefaultChunkSize,
	}
}

// ContentType returns the content-type header.
func (r *Response) ContentType() string {
	return r.Header.Get(header.ContentType)
}

// SetContentType sets the content-type header.
func (r *Response) SetContentType(ct string) {
	r.Header.Set(header.ContentType, ct)
}

// Chunks iterates the body in ChunkSize pieces.
func (r *Response) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	if r.Body == nil {
		return func(func([]byte, error) bool) {}
	}
	return r.Body.Chunks(ctx, r.ChunkSize)
}

// Opener opens a fresh reader over a body's bytes.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Body is a lazy byte sequence. Each call to Chunks starts from the
// beginning: in-memory bodies re-slice their buffer and opener bodies call
// the opener again.
type Body struct {
	data []byte
	open Opener
}

// BytesBody wraps an in-memory payload.
func BytesBody(b []byte) *Body {
	return &Body{data: b}
}

// StringBody wraps a string payload.
func StringBody(s string) *Body {
	return &Body{data: []byte(s)}
}

// ReaderBody wraps an opener. The opener is called once per iteration.
func ReaderBody(open Opener) *Body {
	return &Body{open: open}
}

// Chunks yields the body in pieces of at most size bytes. An error from the
// underlying reader is yielded once and ends the sequence.
func (b *Body) Chunks(ctx context.Context, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if b.open == nil {
		return func(yield func([]byte, error) bool) {
			for off := 0; off < len(b.data); off += size {
				end := min(off+size, len(b.data))
				if !yield(b.data[off:end], nil) {
					return
				}
			}
		}
	}
	return func(yield func([]byte, error) bool) {
		rc, err := b.open(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rc.Close()

		buf := make([]byte, size)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			n, err := io.ReadFull(rc, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// ReadAll collects the whole body. Intended for tests and small payloads.
func (b *Body) ReadAll(ctx context.Context) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	for chunk, err := range b.Chunks(ctx, DefaultChunkSize) {
		if err != nil {
			return nil, err
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}
