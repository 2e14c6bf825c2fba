package transfer

import (
	"compress/lzw"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Content-encoding values understood on the receiving side.
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingDeflate  = "deflate"
	EncodingCompress = "compress"
)

// NormalizeEncoding lower-cases an encoding header and folds aliases.
// An empty value means identity.
func NormalizeEncoding(encoding string) string {
	e := strings.ToLower(strings.TrimSpace(encoding))
	switch e {
	case "", EncodingIdentity:
		return EncodingIdentity
	case "x-gzip":
		return EncodingGzip
	case "x-compress":
		return EncodingCompress
	default:
		return e
	}
}

// NewDecoder wraps r so reads yield decompressed bytes. Both the server's
// inbound path and the client's download path go through here.
//
// deflate is the zlib-wrapped stream (RFC 1950) as HTTP defines it;
// compress is a raw LZW stream, MSB order, 8-bit literals.
func NewDecoder(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch NormalizeEncoding(encoding) {
	case EncodingIdentity:
		return io.NopCloser(r), nil
	case EncodingGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		return zr, nil
	case EncodingDeflate:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("deflate header: %w", err)
		}
		return zr, nil
	case EncodingCompress:
		return lzw.NewReader(r, lzw.MSB, 8), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

// NewEncoder is the sending-side counterpart of NewDecoder. Closing the
// returned writer flushes the compressor but leaves w open.
func NewEncoder(encoding string, w io.Writer) (io.WriteCloser, error) {
	switch NormalizeEncoding(encoding) {
	case EncodingIdentity:
		return nopWriteCloser{w}, nil
	case EncodingGzip:
		return gzip.NewWriter(w), nil
	case EncodingDeflate:
		return zlib.NewWriter(w), nil
	case EncodingCompress:
		return lzw.NewWriter(w, lzw.MSB, 8), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// isMalformedEncoding reports whether err comes from a compressed stream
// the client built wrong, as opposed to a transport failure.
func isMalformedEncoding(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, zlib.ErrHeader) ||
		errors.Is(err, zlib.ErrChecksum) ||
		errors.Is(err, zlib.ErrDictionary) ||
		errors.As(err, &corrupt)
}
