package api

import (
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/server/sessions"
)

// Request is the transport-independent view of one inbound request.
type Request struct {
	Path   string
	Method string
	Header http.Header
	Body   io.Reader
	// ContentLength is the declared body length, -1 when the header is absent.
	ContentLength int64
	// Session is set by the gate on endpoints that require auth.
	Session *sessions.Session
}

// Token returns the session token header.
func (r *Request) Token() string {
	return r.Header.Get(common.HeaderToken)
}

// Result is a handler outcome. Succeeded is the internal outcome used for
// logging and metrics; it is independent of Status, which is what the
// client sees.
type Result struct {
	Succeeded bool
	Status    int
	Body      []byte
	Header    http.Header

	// Stream, when set, is sent instead of Body at Limit bytes per second.
	Stream       io.ReadCloser
	StreamLength int64
	Limit        rate.Limit
}

func ok(body []byte) Result {
	return Result{Succeeded: true, Status: http.StatusOK, Body: body}
}

func okText(msg string) Result {
	return ok([]byte(msg))
}

func fail(status int, msg string) Result {
	return Result{Succeeded: false, Status: status, Body: []byte(msg)}
}

// notImplemented answers unknown paths. The wire status is 404 while the
// outcome is recorded as a failure.
func notImplemented() Result {
	return fail(http.StatusNotFound, "not implemented")
}

func methodNotAllowed(allowed []string) Result {
	r := fail(http.StatusMethodNotAllowed, "method not allowed")
	r.Header = http.Header{}
	for _, m := range allowed {
		r.Header.Add("Allow", m)
	}
	return r
}

func unauthorized(msg string) Result {
	r := fail(http.StatusUnauthorized, msg)
	r.Header = http.Header{}
	r.Header.Set("WWW-Authenticate", common.AuthChallenge)
	return r
}

func (r *Result) setHeader(key, value string) {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(key, value)
}
