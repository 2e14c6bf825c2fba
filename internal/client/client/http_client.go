package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/server/transfer"
)

// maxErrorBody caps how much of an error answer is read into StatusError.
const maxErrorBody = 4 << 10

type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient targets baseURL, e.g. "http://127.0.0.1:8080". A nil
// httpClient means http.DefaultClient.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Register returns the user id and keeps the session token.
func (c *HTTPClient) Register(ctx context.Context, username, password string) (string, error) {
	resp, body, err := c.call(ctx, http.MethodPut, "/user", nil, http.Header{
		common.HeaderUsername: {username},
		common.HeaderPassword: {password},
	}, false)
	if err != nil {
		return "", err
	}
	c.SetToken(resp.Header.Get(common.HeaderToken))
	return string(body), nil
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (string, error) {
	return c.login(ctx, http.Header{
		common.HeaderUsername: {username},
		common.HeaderPassword: {password},
	})
}

// LoginByToken restores a session from a token issued earlier.
func (c *HTTPClient) LoginByToken(ctx context.Context, token string) (string, error) {
	return c.login(ctx, http.Header{common.HeaderToken: {token}})
}

func (c *HTTPClient) login(ctx context.Context, h http.Header) (string, error) {
	_, body, err := c.call(ctx, http.MethodGet, "/user", nil, h, false)
	if err != nil {
		return "", err
	}
	token := string(body)
	c.SetToken(token)
	return token, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	if _, _, err := c.call(ctx, http.MethodPost, "/user", nil, nil, true); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// PutValue stores value under key. A non-identity encoding compresses the
// body before sending it.
func (c *HTTPClient) PutValue(ctx context.Context, storage, key string, value []byte, encoding string) error {
	body, err := encode(encoding, value)
	if err != nil {
		return err
	}
	h := storageHeader(storage, key)
	if enc := transfer.NormalizeEncoding(encoding); enc != transfer.EncodingIdentity {
		h.Set(common.HeaderContentEncoding, enc)
	}
	_, _, err = c.call(ctx, http.MethodPut, "/storage", bytes.NewReader(body), h, true)
	return err
}

func (c *HTTPClient) GetValue(ctx context.Context, storage, key string) ([]byte, error) {
	_, body, err := c.call(ctx, http.MethodGet, "/storage", nil, storageHeader(storage, key), true)
	return body, err
}

func (c *HTTPClient) DeleteValue(ctx context.Context, storage, key string) error {
	_, _, err := c.call(ctx, http.MethodDelete, "/storage", nil, storageHeader(storage, key), true)
	return err
}

func (c *HTTPClient) ListKeys(ctx context.Context, storage string) ([]string, error) {
	_, body, err := c.call(ctx, http.MethodGet, "/storage", nil, storageHeader(storage, ""), true)
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("decode key list: %w", err)
	}
	return keys, nil
}

// Upload sends size bytes from r as the resource identifier. With an
// encoding the content is compressed in memory first, since the server
// needs the length up front. speedKB > 0 paces the upload.
func (c *HTTPClient) Upload(ctx context.Context, identifier string, r io.Reader, size int64, encoding string, speedKB int) error {
	h := http.Header{common.HeaderIdentifier: {identifier}}

	enc := transfer.NormalizeEncoding(encoding)
	if enc != transfer.EncodingIdentity {
		raw, err := io.ReadAll(io.LimitReader(r, size))
		if err != nil {
			return err
		}
		data, err := encode(enc, raw)
		if err != nil {
			return err
		}
		r, size = bytes.NewReader(data), int64(len(data))
		h.Set(common.HeaderContentEncoding, enc)
	}

	pr, pw := io.Pipe()
	go func() {
		w := transfer.NewThrottledWriter(ctx, pw, transfer.ParseSpeed(strconv.Itoa(speedKB)))
		_, err := io.CopyN(w, r, size)
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPut, "/resource", pr, h, true)
	if err != nil {
		pr.Close()
		return err
	}
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Download writes the resource to w and returns the number of bytes
// written. speedKB > 0 asks the server to pace the transfer.
func (c *HTTPClient) Download(ctx context.Context, identifier string, w io.Writer, speedKB int) (int64, error) {
	h := http.Header{common.HeaderIdentifier: {identifier}}
	if speedKB > 0 {
		h.Set(common.HeaderTransferSpeed, strconv.Itoa(speedKB))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/resource", nil, h, true)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	body, err := transfer.NewDecoder(resp.Header.Get(common.HeaderContentEncoding), resp.Body)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return io.Copy(w, body)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader, h http.Header, withToken bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if withToken {
		if token := c.Token(); token != "" {
			req.Header.Set(common.HeaderToken, token)
		}
	}
	return req, nil
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body io.Reader, h http.Header, withToken bool) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body, h, withToken)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return resp, nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, data, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}

func storageHeader(storage, key string) http.Header {
	h := http.Header{}
	if storage != "" {
		h.Set(common.HeaderStorage, storage)
	}
	if key != "" {
		h.Set(common.HeaderKey, key)
	}
	return h
}

func encode(encoding string, data []byte) ([]byte, error) {
	enc := transfer.NormalizeEncoding(encoding)
	if enc == transfer.EncodingIdentity {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := transfer.NewEncoder(enc, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", enc, err)
	}
	return buf.Bytes(), nil
}
