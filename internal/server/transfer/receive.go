// Package transfer moves request and response bodies: bounded inbound
// reads, rate-limited outbound writes and content-encoding negotiation
// shared by the server and the client.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
)

const copyBufferSize = 32 * 1024

// DefaultMaxDecodedSize caps the decompressed size of an encoded body when
// Options.MaxDecodedSize is not set.
const DefaultMaxDecodedSize = 32 << 20

// Aborter is implemented by sinks that can discard a partially written
// artifact. ReceiveBody calls Abort instead of Close on failure.
type Aborter interface {
	Abort() error
}

// Options describe one inbound body.
type Options struct {
	// DeclaredLength is the content-length header value, or -1 when absent.
	DeclaredLength int64
	// Encoding is the content-encoding header value.
	Encoding string
	// Sink, when set, receives the decoded body instead of an in-memory buffer.
	Sink io.WriteCloser
	// MaxDecodedSize caps the bytes an encoded body may inflate to.
	// Zero or less means DefaultMaxDecodedSize.
	MaxDecodedSize int64
}

// ReceiveBody reads src to completion. The bound is enforced on wire bytes,
// before decompression, on both the sink and the buffer path: the first
// byte past DeclaredLength aborts the transfer with 413. An encoded body
// is also aborted with 413 once it inflates past MaxDecodedSize.
//
// With a sink the returned slice is nil and success means the sink's Close
// returned nil. Without one the whole decoded body is returned.
func ReceiveBody(ctx context.Context, src io.Reader, opts Options) ([]byte, error) {
	if opts.DeclaredLength < 0 {
		abortSink(opts.Sink)
		return nil, newError(http.StatusLengthRequired, ErrLengthRequired)
	}

	bounded := &boundedReader{ctx: ctx, r: src, remaining: opts.DeclaredLength}

	dec, err := NewDecoder(opts.Encoding, bounded)
	if err != nil {
		abortSink(opts.Sink)
		return nil, classifyRead(err)
	}
	defer dec.Close()

	var body io.Reader = dec
	if NormalizeEncoding(opts.Encoding) != EncodingIdentity {
		limit := opts.MaxDecodedSize
		if limit <= 0 {
			limit = DefaultMaxDecodedSize
		}
		body = &boundedReader{ctx: ctx, r: dec, remaining: limit}
	}

	if opts.Sink != nil {
		if err := pump(opts.Sink, body); err != nil {
			abortSink(opts.Sink)
			return nil, err
		}
		if err := opts.Sink.Close(); err != nil {
			return nil, newError(http.StatusInternalServerError, errors.Join(ErrSink, err))
		}
		return nil, nil
	}

	var buf bytes.Buffer
	if opts.DeclaredLength > 0 && opts.DeclaredLength <= copyBufferSize*32 {
		buf.Grow(int(opts.DeclaredLength))
	}
	if err := pump(&buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pump copies src into dst keeping read-side and write-side failures apart.
func pump(dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return newError(http.StatusInternalServerError, errors.Join(ErrSink, werr))
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return classifyRead(rerr)
		}
	}
}

func classifyRead(err error) *Error {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return newError(http.StatusRequestEntityTooLarge, ErrPayloadTooLarge)
	case errors.Is(err, ErrUnsupportedEncoding):
		return newError(http.StatusBadRequest, err)
	case isMalformedEncoding(err):
		return newError(http.StatusBadRequest, errors.Join(ErrMalformedBody, err))
	default:
		return newError(http.StatusInternalServerError, errors.Join(ErrAborted, err))
	}
}

func abortSink(sink io.WriteCloser) {
	if sink == nil {
		return
	}
	if a, ok := sink.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = sink.Close()
}

// boundedReader fails with ErrPayloadTooLarge once more than remaining
// bytes have been produced, and with the context error once ctx is done.
type boundedReader struct {
	ctx       context.Context
	r         io.Reader
	remaining int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	// Ask for one byte more than allowed so overflow is seen immediately.
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.r.Read(p)
	if int64(n) > b.remaining {
		b.remaining = 0
		return 0, ErrPayloadTooLarge
	}
	b.remaining -= int64(n)
	return n, err
}
