package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	bytes.Buffer
	closed  bool
	aborted bool
	failAt  int
}

func (s *memSink) Write(p []byte) (int, error) {
	if s.failAt > 0 && s.Len()+len(p) > s.failAt {
		return 0, errors.New("disk full")
	}
	return s.Buffer.Write(p)
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func (s *memSink) Abort() error {
	s.aborted = true
	s.Reset()
	return nil
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestReceiveBody_Buffer(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		declared   int64
		wantStatus int
		want       string
	}{
		{name: "exact length", body: "hello", declared: 5, want: "hello"},
		{name: "shorter than declared", body: "hi", declared: 10, want: "hi"},
		{name: "empty body", body: "", declared: 0, want: ""},
		{name: "missing length", body: "hello", declared: -1, wantStatus: http.StatusLengthRequired},
		{name: "one byte over", body: "hello!", declared: 5, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "far over", body: strings.Repeat("x", 100_000), declared: 10, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReceiveBody(context.Background(), strings.NewReader(tt.body), Options{DeclaredLength: tt.declared})
			if tt.wantStatus != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, StatusOf(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestReceiveBody_Sink(t *testing.T) {
	t.Run("success closes sink", func(t *testing.T) {
		sink := &memSink{}
		got, err := ReceiveBody(context.Background(), strings.NewReader("payload"), Options{DeclaredLength: 7, Sink: sink})
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.True(t, sink.closed)
		assert.False(t, sink.aborted)
		assert.Equal(t, "payload", sink.String())
	})

	t.Run("overflow aborts sink", func(t *testing.T) {
		sink := &memSink{}
		body := strings.Repeat("a", 3*copyBufferSize)
		_, err := ReceiveBody(context.Background(), strings.NewReader(body), Options{DeclaredLength: copyBufferSize, Sink: sink})
		require.Error(t, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(err))
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.True(t, sink.aborted)
		assert.False(t, sink.closed)
		assert.Zero(t, sink.Len())
	})

	t.Run("missing length aborts sink", func(t *testing.T) {
		sink := &memSink{}
		_, err := ReceiveBody(context.Background(), strings.NewReader("x"), Options{DeclaredLength: -1, Sink: sink})
		assert.ErrorIs(t, err, ErrLengthRequired)
		assert.True(t, sink.aborted)
	})

	t.Run("sink write failure is 500", func(t *testing.T) {
		sink := &memSink{failAt: 4}
		_, err := ReceiveBody(context.Background(), strings.NewReader("too long"), Options{DeclaredLength: 8, Sink: sink})
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
		assert.ErrorIs(t, err, ErrSink)
		assert.True(t, sink.aborted)
	})

	t.Run("client abort is reported", func(t *testing.T) {
		sink := &memSink{}
		src := &failingReader{data: []byte("part"), err: io.ErrUnexpectedEOF}
		_, err := ReceiveBody(context.Background(), src, Options{DeclaredLength: 100, Sink: sink})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAborted)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
		assert.True(t, sink.aborted)
	})
}

func TestReceiveBody_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReceiveBody(ctx, strings.NewReader("hello"), Options{DeclaredLength: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestReceiveBody_Encoded(t *testing.T) {
	plain := []byte(strings.Repeat("resvault compressed body ", 200))

	for _, enc := range []string{EncodingGzip, EncodingDeflate, EncodingCompress, "GZIP", ""} {
		t.Run("encoding "+enc, func(t *testing.T) {
			var wire bytes.Buffer
			w, err := NewEncoder(enc, &wire)
			require.NoError(t, err)
			_, err = w.Write(plain)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			got, err := ReceiveBody(context.Background(), bytes.NewReader(wire.Bytes()), Options{
				DeclaredLength: int64(wire.Len()),
				Encoding:       enc,
			})
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

func TestReceiveBody_BoundIsOnWireBytes(t *testing.T) {
	plain := bytes.Repeat([]byte{'z'}, 64*1024)

	var wire bytes.Buffer
	w, err := NewEncoder(EncodingGzip, &wire)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Less(t, wire.Len(), len(plain))

	got, err := ReceiveBody(context.Background(), bytes.NewReader(wire.Bytes()), Options{
		DeclaredLength: int64(wire.Len()),
		Encoding:       EncodingGzip,
	})
	require.NoError(t, err)
	assert.Len(t, got, len(plain))

	_, err = ReceiveBody(context.Background(), bytes.NewReader(wire.Bytes()), Options{
		DeclaredLength: int64(wire.Len() - 5),
		Encoding:       EncodingGzip,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(err))
}

func TestReceiveBody_UnsupportedEncoding(t *testing.T) {
	_, err := ReceiveBody(context.Background(), strings.NewReader("x"), Options{DeclaredLength: 1, Encoding: "br"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestStatusOf_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func gzipped(t *testing.T, plain []byte) []byte {
	t.Helper()
	var wire bytes.Buffer
	w, err := NewEncoder(EncodingGzip, &wire)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return wire.Bytes()
}

func TestReceiveBody_DecodedSizeCapped(t *testing.T) {
	bomb := gzipped(t, bytes.Repeat([]byte{0}, 4<<20))
	require.Less(t, len(bomb), 64*1024)

	tests := []struct {
		name  string
		limit int64
		want  int
	}{
		{name: "over explicit cap", limit: 1 << 20, want: http.StatusRequestEntityTooLarge},
		{name: "exactly at cap", limit: 4 << 20, want: http.StatusOK},
		{name: "default cap allows", limit: 0, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReceiveBody(context.Background(), bytes.NewReader(bomb), Options{
				DeclaredLength: int64(len(bomb)),
				Encoding:       EncodingGzip,
				MaxDecodedSize: tt.limit,
			})
			if tt.want == http.StatusOK {
				require.NoError(t, err)
				assert.Len(t, got, 4<<20)
				return
			}
			assert.ErrorIs(t, err, ErrPayloadTooLarge)
			assert.Equal(t, tt.want, StatusOf(err))
			assert.Nil(t, got)
		})
	}
}

func TestReceiveBody_DecodedSizeCappedOnSink(t *testing.T) {
	bomb := gzipped(t, bytes.Repeat([]byte{0}, 2<<20))
	sink := &memSink{}

	_, err := ReceiveBody(context.Background(), bytes.NewReader(bomb), Options{
		DeclaredLength: int64(len(bomb)),
		Encoding:       EncodingGzip,
		Sink:           sink,
		MaxDecodedSize: 64 * 1024,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(err))
	assert.True(t, sink.aborted)
	assert.Zero(t, sink.Len())
}

func TestReceiveBody_IdentityIgnoresDecodedCap(t *testing.T) {
	body := bytes.Repeat([]byte{'a'}, 4096)
	got, err := ReceiveBody(context.Background(), bytes.NewReader(body), Options{
		DeclaredLength: int64(len(body)),
		MaxDecodedSize: 16,
	})
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestReceiveBody_MalformedEncoding(t *testing.T) {
	valid := gzipped(t, []byte(strings.Repeat("payload ", 512)))
	badCRC := bytes.Clone(valid)
	badCRC[len(badCRC)-8] ^= 0xff

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{name: "gzip bad magic", encoding: EncodingGzip, body: []byte("definitely not gzip data")},
		{name: "deflate bad header", encoding: EncodingDeflate, body: []byte{0x00, 0x00, 0x01, 0x02}},
		{name: "gzip checksum mismatch", encoding: EncodingGzip, body: badCRC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			_, err := ReceiveBody(context.Background(), bytes.NewReader(tt.body), Options{
				DeclaredLength: int64(len(tt.body)),
				Encoding:       tt.encoding,
				Sink:           sink,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedBody)
			assert.NotErrorIs(t, err, ErrAborted)
			assert.Equal(t, http.StatusBadRequest, StatusOf(err))
			assert.True(t, sink.aborted)
		})
	}
}
