package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/auth"
	"github.com/dmitrijs2005/resvault/internal/server/sessions"
	"github.com/dmitrijs2005/resvault/internal/server/storage"
	"github.com/dmitrijs2005/resvault/internal/server/transfer"
	"github.com/dmitrijs2005/resvault/internal/server/users"
)

// spyBackend counts every call that reaches the store.
type spyBackend struct {
	*storage.LocalBackend
	calls atomic.Int64
}

func (s *spyBackend) AddResource(ctx context.Context, key string, value []byte, forced bool) (bool, error) {
	s.calls.Add(1)
	return s.LocalBackend.AddResource(ctx, key, value, forced)
}

func (s *spyBackend) GetResource(ctx context.Context, key string) ([]byte, error) {
	s.calls.Add(1)
	return s.LocalBackend.GetResource(ctx, key)
}

func (s *spyBackend) RemoveResource(ctx context.Context, key string) error {
	s.calls.Add(1)
	return s.LocalBackend.RemoveResource(ctx, key)
}

func (s *spyBackend) ListResources(ctx context.Context) ([]string, error) {
	s.calls.Add(1)
	return s.LocalBackend.ListResources(ctx)
}

type harness struct {
	router   *Router
	sessions *sessions.Manager
	backend  *spyBackend
	storage  *StorageHandlers
	metrics  *Metrics
	srv      *httptest.Server
}

func newHarness(t *testing.T, authorizer auth.Authorizer) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo := users.NewFileRepository(filepath.Join(dir, "users.json"), false)
	mgr := sessions.NewManager(repo, []byte("test-secret"), logging.Nop{})

	backends := storage.NewRegistry("main", logging.Nop{})
	spy := &spyBackend{LocalBackend: storage.NewLocalBackend(filepath.Join(dir, "main.json"), logging.Nop{})}
	require.NoError(t, backends.Register(ctx, "main", spy))
	require.NoError(t, backends.Register(ctx, "aux",
		storage.NewLocalBackend(filepath.Join(dir, "aux.json"), logging.Nop{})))

	store, err := storage.NewResourceStore(filepath.Join(dir, "resources"))
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	storageHandlers := NewStorageHandlers(backends, logging.Nop{})
	registry := NewRegistry(
		NewUserHandlers(mgr, logging.Nop{}),
		NewResourceHandlers(store, logging.Nop{}),
		storageHandlers,
	)
	router := NewRouter(registry, NewGate(mgr, authorizer), metrics, logging.Nop{})

	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)

	return &harness{router: router, sessions: mgr, backend: spy, storage: storageHandlers, metrics: metrics, srv: srv}
}

func (h *harness) do(t *testing.T, method, path string, body []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (h *harness) register(t *testing.T, user, password string) string {
	t.Helper()
	resp, _ := h.do(t, http.MethodPut, "/user", nil, map[string]string{
		common.HeaderUsername: user,
		common.HeaderPassword: password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := resp.Header.Get(common.HeaderToken)
	require.NotEmpty(t, token)
	return token
}

func TestAPI_UserStorageLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodPut, "/user", nil, map[string]string{
		common.HeaderUsername: "Rob",
		common.HeaderPassword: "erto",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body, "register returns the user id")
	token := resp.Header.Get(common.HeaderToken)
	require.NotEmpty(t, token)

	resp, body = h.do(t, http.MethodGet, "/user", nil, map[string]string{
		common.HeaderUsername: "rob",
		common.HeaderPassword: "erto",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, token, string(body))

	hdr := map[string]string{common.HeaderToken: token, common.HeaderKey: "greeting"}

	resp, _ = h.do(t, http.MethodPut, "/storage", []byte("hello"), hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/storage", nil, hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))

	resp, body = h.do(t, http.MethodGet, "/storage", nil, map[string]string{common.HeaderToken: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["greeting"]`, string(body))

	resp, _ = h.do(t, http.MethodDelete, "/storage", nil, hdr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodDelete, "/storage", nil, hdr)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(t, http.MethodGet, "/storage", nil, hdr)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/user", nil, map[string]string{common.HeaderToken: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/storage", nil, hdr)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, common.AuthChallenge, resp.Header.Get("WWW-Authenticate"))

	resp, _ = h.do(t, http.MethodPost, "/user", nil, map[string]string{common.HeaderToken: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_UserErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "rob", "erto")

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		want    int
	}{
		{"register without password", http.MethodPut, map[string]string{common.HeaderUsername: "x"}, http.StatusBadRequest},
		{"register with other password", http.MethodPut, map[string]string{common.HeaderUsername: "rob", common.HeaderPassword: "nope"}, http.StatusUnauthorized},
		{"login unknown user", http.MethodGet, map[string]string{common.HeaderUsername: "ghost", common.HeaderPassword: "x"}, http.StatusUnauthorized},
		{"login without anything", http.MethodGet, nil, http.StatusBadRequest},
		{"login with forged token", http.MethodGet, map[string]string{common.HeaderToken: "forged"}, http.StatusUnauthorized},
		{"logout without token", http.MethodPost, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := h.do(t, tt.method, "/user", nil, tt.headers)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPI_LoginByTokenAfterLogout(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")

	resp, _ := h.do(t, http.MethodPost, "/user", nil, map[string]string{common.HeaderToken: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/user", nil, map[string]string{common.HeaderToken: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body)
}

func TestAPI_GateNeverReachesStorage(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(t, http.MethodPut, "/storage", []byte("x"), map[string]string{common.HeaderKey: "k"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/storage", nil, map[string]string{
		common.HeaderKey:   "k",
		common.HeaderToken: "not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Zero(t, h.backend.calls.Load())
}

func TestAPI_AuthorizerDenies(t *testing.T) {
	deny := auth.AuthorizerFunc(func(_ context.Context, _ string, path string) bool {
		return path != "/storage"
	})
	h := newHarness(t, deny)
	token := h.register(t, "rob", "erto")

	resp, _ := h.do(t, http.MethodGet, "/storage", nil, map[string]string{common.HeaderToken: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, h.backend.calls.Load())
}

func TestAPI_UnknownStorage(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")

	resp, body := h.do(t, http.MethodPut, "/storage", []byte("x"), map[string]string{
		common.HeaderToken:   token,
		common.HeaderKey:     "k",
		common.HeaderStorage: "ghost",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "ghost")
	assert.Zero(t, h.backend.calls.Load())
}

func TestAPI_StorageInstancesAreSeparate(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")

	resp, _ := h.do(t, http.MethodPut, "/storage", []byte("aux"), map[string]string{
		common.HeaderToken:   token,
		common.HeaderKey:     "k",
		common.HeaderStorage: "aux",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/storage", nil, map[string]string{
		common.HeaderToken: token,
		common.HeaderKey:   "k",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "default instance does not see aux keys")
}

func TestAPI_StorageMissingKey(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")

	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		resp, _ := h.do(t, method, "/storage", []byte("x"), map[string]string{common.HeaderToken: token})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, method)
	}
	assert.Zero(t, h.backend.calls.Load())
}

func TestAPI_GzipUpload(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")

	payload := []byte(strings.Repeat("compressible ", 500))
	var buf bytes.Buffer
	enc, err := transfer.NewEncoder(transfer.EncodingGzip, &buf)
	require.NoError(t, err)
	_, err = enc.Write(payload)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	resp, _ := h.do(t, http.MethodPut, "/storage", buf.Bytes(), map[string]string{
		common.HeaderToken:           token,
		common.HeaderKey:             "doc",
		common.HeaderContentEncoding: "gzip",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/storage", nil, map[string]string{
		common.HeaderToken: token,
		common.HeaderKey:   "doc",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)
}

func TestAPI_ResourceRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")
	payload := bytes.Repeat([]byte{0xAB}, 100*1024)

	resp, _ := h.do(t, http.MethodPut, "/resource", payload, map[string]string{
		common.HeaderToken:      token,
		common.HeaderIdentifier: "blob.bin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/resource", nil, map[string]string{
		common.HeaderToken:      token,
		common.HeaderIdentifier: "blob.bin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(len(payload)), resp.ContentLength)
	assert.Equal(t, payload, body)
}

func TestAPI_ResourceErrors(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")

	tests := []struct {
		name   string
		method string
		id     string
		want   int
	}{
		{"download missing", http.MethodGet, "nothing", http.StatusNotFound},
		{"download without identifier", http.MethodGet, "", http.StatusBadRequest},
		{"upload traversal", http.MethodPut, "../escape", http.StatusBadRequest},
		{"download traversal", http.MethodGet, "../escape", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{common.HeaderToken: token}
			if tt.id != "" {
				headers[common.HeaderIdentifier] = tt.id
			}
			resp, _ := h.do(t, tt.method, "/resource", []byte("x"), headers)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPI_RateLimitedDownload(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")
	payload := bytes.Repeat([]byte("r"), 8*1024)

	resp, _ := h.do(t, http.MethodPut, "/resource", payload, map[string]string{
		common.HeaderToken:      token,
		common.HeaderIdentifier: "slow",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	start := time.Now()
	resp, body := h.do(t, http.MethodGet, "/resource", nil, map[string]string{
		common.HeaderToken:         token,
		common.HeaderIdentifier:    "slow",
		common.HeaderTransferSpeed: "8",
	})
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)
	assert.GreaterOrEqual(t, elapsed, 700*time.Millisecond)
}

func TestAPI_UnknownPathAndMethod(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not implemented", string(body))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		h.metrics.requestsTotal.WithLabelValues("unknown", http.MethodGet, "404", "failed")))

	resp, _ = h.do(t, http.MethodPatch, "/storage", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.ElementsMatch(t, []string{"DELETE", "GET", "PUT"}, resp.Header.Values("Allow"))
}

func TestRouter_Dispatch_TransferErrors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	token := h.register(t, "rob", "erto")

	header := func() http.Header {
		hd := http.Header{}
		hd.Set(common.HeaderToken, token)
		hd.Set(common.HeaderKey, "k")
		return hd
	}

	t.Run("length required", func(t *testing.T) {
		res := h.router.Dispatch(ctx, &Request{
			Path: "/storage", Method: http.MethodPut, Header: header(),
			Body: strings.NewReader("abc"), ContentLength: -1,
		})
		assert.Equal(t, http.StatusLengthRequired, res.Status)
		assert.False(t, res.Succeeded)
	})

	t.Run("payload too large persists nothing", func(t *testing.T) {
		res := h.router.Dispatch(ctx, &Request{
			Path: "/storage", Method: http.MethodPut, Header: header(),
			Body: strings.NewReader("abcdef"), ContentLength: 3,
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, res.Status)

		has, err := h.backend.HasResource(ctx, "k")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("oversized resource leaves no file", func(t *testing.T) {
		hd := header()
		hd.Set(common.HeaderIdentifier, "big")
		res := h.router.Dispatch(ctx, &Request{
			Path: "/resource", Method: http.MethodPut, Header: hd,
			Body: strings.NewReader("abcdef"), ContentLength: 2,
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, res.Status)

		res = h.router.Dispatch(ctx, &Request{
			Path: "/resource", Method: http.MethodGet, Header: hd, ContentLength: 0,
		})
		assert.Equal(t, http.StatusNotFound, res.Status)
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		hd := header()
		hd.Set(common.HeaderContentEncoding, "br")
		res := h.router.Dispatch(ctx, &Request{
			Path: "/storage", Method: http.MethodPut, Header: hd,
			Body: strings.NewReader("abc"), ContentLength: 3,
		})
		assert.Equal(t, http.StatusBadRequest, res.Status)
	})

	t.Run("malformed gzip is a bad request", func(t *testing.T) {
		hd := header()
		hd.Set(common.HeaderContentEncoding, "gzip")
		body := "this is not a gzip stream"
		res := h.router.Dispatch(ctx, &Request{
			Path: "/storage", Method: http.MethodPut, Header: hd,
			Body: strings.NewReader(body), ContentLength: int64(len(body)),
		})
		assert.Equal(t, http.StatusBadRequest, res.Status)
		assert.False(t, res.Succeeded)
	})

	t.Run("decoded size over cap persists nothing", func(t *testing.T) {
		var wire bytes.Buffer
		enc, err := transfer.NewEncoder(transfer.EncodingGzip, &wire)
		require.NoError(t, err)
		_, err = enc.Write(make([]byte, 1<<20))
		require.NoError(t, err)
		require.NoError(t, enc.Close())

		h.storage.MaxDecodedSize = 64 * 1024
		t.Cleanup(func() { h.storage.MaxDecodedSize = 0 })

		hd := header()
		hd.Set(common.HeaderKey, "bomb")
		hd.Set(common.HeaderContentEncoding, "gzip")
		res := h.router.Dispatch(ctx, &Request{
			Path: "/storage", Method: http.MethodPut, Header: hd,
			Body: bytes.NewReader(wire.Bytes()), ContentLength: int64(wire.Len()),
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, res.Status)

		has, err := h.backend.HasResource(ctx, "bomb")
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestRouter_DrainWaitsForInFlightWrite(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register(t, "rob", "erto")
	ctx := context.Background()

	assert.NoError(t, h.router.Drain(ctx), "idle router drains at once")

	pr, pw := io.Pipe()
	req, err := http.NewRequest(http.MethodPut, h.srv.URL+"/storage", pr)
	require.NoError(t, err)
	req.ContentLength = 10
	req.Header.Set(common.HeaderToken, token)
	req.Header.Set(common.HeaderKey, "late")

	done := make(chan int, 1)
	go func() {
		resp, err := h.srv.Client().Do(req)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	_, err = pw.Write([]byte("first"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.router.inflight.active() == 1 }, 2*time.Second, 10*time.Millisecond)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.router.Drain(short), context.DeadlineExceeded)

	_, err = pw.Write([]byte("-last"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	long, cancelLong := context.WithTimeout(ctx, 2*time.Second)
	defer cancelLong()
	require.NoError(t, h.router.Drain(long))

	got, err := h.backend.GetResource(ctx, "late")
	require.NoError(t, err, "a drained write is visible to the final flush")
	assert.Equal(t, "first-last", string(got))
	assert.Equal(t, http.StatusOK, <-done)
}
