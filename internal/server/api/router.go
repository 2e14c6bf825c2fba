// Package api exposes the resource protocol over HTTP: a static endpoint
// registry, the authorization gate, the router that ties them together
// and the handlers behind /user, /resource and /storage.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/transfer"
)

// Router dispatches requests: registry lookup, method check, gate, handler.
type Router struct {
	registry *Registry
	gate     *Gate
	metrics  *Metrics
	logger   logging.Logger
	inflight inflight
}

func NewRouter(registry *Registry, gate *Gate, metrics *Metrics, logger logging.Logger) *Router {
	return &Router{
		registry: registry,
		gate:     gate,
		metrics:  metrics,
		logger:   logger.With("module", "router"),
	}
}

// Dispatch runs one request through the pipeline. The gate runs before
// the handler, so a rejected request never reaches storage.
func (rt *Router) Dispatch(ctx context.Context, req *Request) Result {
	ep, ok := rt.registry.Lookup(req.Path)
	if !ok {
		return notImplemented()
	}

	handler, ok := ep.Methods[req.Method]
	if !ok {
		return methodNotAllowed(ep.AllowedMethods())
	}

	res, session := rt.gate.CheckAuth(ctx, ep.Path, ep.RequiresAuth, req.Token())
	if !res.Succeeded {
		return res
	}
	req.Session = session

	return handler(ctx, req)
}

// Handler mounts the registry on chi. Unknown paths and methods fall
// through to Dispatch so they get the protocol's own answers.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	for _, ep := range rt.registry.Endpoints() {
		r.HandleFunc(ep.Path, rt.serveHTTP)
	}
	r.NotFound(rt.serveHTTP)
	r.MethodNotAllowed(rt.serveHTTP)

	return r
}

// Drain waits until every request that entered the router has returned,
// or until ctx is done. Call it after the HTTP server has stopped
// accepting requests and before storages are flushed.
func (rt *Router) Drain(ctx context.Context) error {
	return rt.inflight.wait(ctx)
}

func (rt *Router) serveHTTP(w http.ResponseWriter, r *http.Request) {
	rt.inflight.begin()
	defer rt.inflight.end()

	start := time.Now()
	ctx := r.Context()

	body := &countingReader{r: r.Body}
	req := &Request{
		Path:          r.URL.Path,
		Method:        r.Method,
		Header:        r.Header,
		Body:          body,
		ContentLength: declaredLength(r),
	}

	res := rt.Dispatch(ctx, req)
	sent, err := rt.write(ctx, w, res)

	endpoint := "unknown"
	if ep, ok := rt.registry.Lookup(req.Path); ok {
		endpoint = ep.Kind.String()
	}
	succeeded := res.Succeeded && err == nil
	elapsed := time.Since(start)

	args := []any{
		"request_id", middleware.GetReqID(ctx),
		"method", req.Method,
		"path", req.Path,
		"status", res.Status,
		"succeeded", succeeded,
		"bytes_in", body.n.Load(),
		"bytes_out", sent,
		"duration", elapsed.String(),
	}
	if res.Stream != nil && res.Limit > 0 && res.Limit != rate.Inf {
		args = append(args, "rate_bytes_per_ms", transfer.BytesPerMillisecond(float64(res.Limit)/1024))
	}
	switch {
	case err != nil:
		rt.logger.Warn(ctx, "response aborted", append(args, "error", err)...)
	case succeeded:
		rt.logger.Info(ctx, "request completed", args...)
	default:
		rt.logger.Info(ctx, "request failed", args...)
	}

	rt.metrics.Observe(endpoint, req.Method, res.Status, succeeded, body.n.Load(), sent, elapsed)
}

func (rt *Router) write(ctx context.Context, w http.ResponseWriter, res Result) (int64, error) {
	for k, vs := range res.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	if res.Stream != nil {
		defer res.Stream.Close()
		if res.StreamLength >= 0 {
			w.Header().Set(common.HeaderContentLength, strconv.FormatInt(res.StreamLength, 10))
		}
		if w.Header().Get(common.HeaderContentType) == "" {
			w.Header().Set(common.HeaderContentType, "application/octet-stream")
		}
		w.WriteHeader(status)
		limit := res.Limit
		if limit == 0 {
			limit = rate.Inf
		}
		return transfer.SendBody(ctx, w, res.Stream, nil, limit)
	}

	if w.Header().Get(common.HeaderContentType) == "" {
		w.Header().Set(common.HeaderContentType, "text/plain; charset=utf-8")
	}
	w.Header().Set(common.HeaderContentLength, strconv.Itoa(len(res.Body)))
	w.WriteHeader(status)
	return transfer.SendBody(ctx, w, nil, res.Body, rate.Inf)
}

// declaredLength is -1 when the client declared no length. net/http drops
// the header for chunked bodies and reports ContentLength -1 for them.
func declaredLength(r *http.Request) int64 {
	if r.Header.Get(common.HeaderContentLength) == "" && r.ContentLength <= 0 {
		return -1
	}
	return r.ContentLength
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
