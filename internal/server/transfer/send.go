package transfer

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const maxBurst = 32 * 1024

// ParseSpeed turns a transfer-speed header (KB/s) into a byte rate.
// Missing, invalid or non-positive values mean unlimited.
func ParseSpeed(header string) rate.Limit {
	header = strings.TrimSpace(header)
	if header == "" {
		return rate.Inf
	}
	kbps, err := strconv.ParseFloat(header, 64)
	if err != nil || kbps <= 0 || math.IsInf(kbps, 0) || math.IsNaN(kbps) {
		return rate.Inf
	}
	return rate.Limit(kbps * 1024)
}

// BytesPerMillisecond converts a KB/s speed into bytes per millisecond.
func BytesPerMillisecond(kbps float64) float64 {
	return kbps * 1024 / 1000
}

// NewThrottledWriter paces writes to w at limit bytes per second.
// An unlimited rate returns w unchanged.
func NewThrottledWriter(ctx context.Context, w io.Writer, limit rate.Limit) io.Writer {
	if limit == rate.Inf || limit <= 0 {
		return w
	}
	// The bucket holds a tenth of a second worth of bytes so pacing starts
	// right away instead of after a full second of burst.
	burst := maxBurst
	if tenth := float64(limit) / 10; tenth < float64(burst) {
		burst = int(tenth)
	}
	if burst < 1 {
		burst = 1
	}
	tw := &throttledWriter{
		ctx:     ctx,
		w:       w,
		limiter: rate.NewLimiter(limit, burst),
		chunk:   burst,
	}
	if f, ok := w.(http.Flusher); ok {
		tw.flusher = f
	}
	return tw
}

type throttledWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
	chunk   int
	flusher http.Flusher
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), t.chunk)
		if err := t.limiter.WaitN(t.ctx, n); err != nil {
			return written, err
		}
		m, err := t.w.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		if t.flusher != nil {
			t.flusher.Flush()
		}
		p = p[n:]
	}
	return written, nil
}

// SendBody writes an outbound body. A non-nil src is streamed through the
// limiter; otherwise value is written at once. The returned count is the
// number of bytes handed to dst.
func SendBody(ctx context.Context, dst io.Writer, src io.Reader, value []byte, limit rate.Limit) (int64, error) {
	if src == nil {
		n, err := dst.Write(value)
		return int64(n), err
	}
	w := NewThrottledWriter(ctx, dst, limit)
	return io.CopyBuffer(w, &ctxReader{ctx: ctx, r: src}, make([]byte, copyBufferSize))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
