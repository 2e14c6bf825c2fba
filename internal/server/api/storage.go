package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/storage"
	"github.com/dmitrijs2005/resvault/internal/server/transfer"
)

// BackendLookup picks a storage instance by name; "" is the default.
type BackendLookup interface {
	Get(name string) (storage.Backend, bool)
}

type StorageHandlers struct {
	backends BackendLookup
	logger   logging.Logger

	// MaxDecodedSize caps what an encoded PUT body may inflate to; zero
	// means transfer.DefaultMaxDecodedSize.
	MaxDecodedSize int64
}

func NewStorageHandlers(backends BackendLookup, logger logging.Logger) *StorageHandlers {
	return &StorageHandlers{backends: backends, logger: logger.With("module", "storage")}
}

// backend resolves the storage header. An unknown name is answered here,
// before any backend is called.
func (h *StorageHandlers) backend(req *Request) (storage.Backend, Result, bool) {
	name := req.Header.Get(common.HeaderStorage)
	b, ok := h.backends.Get(name)
	if !ok {
		return nil, fail(http.StatusNotFound, "storage not found: "+name), false
	}
	return b, Result{}, true
}

// Get returns the value under the key header, or the JSON array of all
// keys when no key is given.
func (h *StorageHandlers) Get(ctx context.Context, req *Request) Result {
	b, res, found := h.backend(req)
	if !found {
		return res
	}

	key := req.Header.Get(common.HeaderKey)
	if key == "" {
		keys, err := b.ListResources(ctx)
		if err != nil {
			return h.backendError(ctx, b, "list", err)
		}
		data, err := json.Marshal(keys)
		if err != nil {
			return h.backendError(ctx, b, "list", err)
		}
		return ok200(data, "application/json")
	}

	value, err := b.GetResource(ctx, key)
	if err != nil {
		return h.backendError(ctx, b, "get", err)
	}
	return ok200(value, "application/octet-stream")
}

// Put stores the body under the key header, overwriting any previous value.
func (h *StorageHandlers) Put(ctx context.Context, req *Request) Result {
	b, res, found := h.backend(req)
	if !found {
		return res
	}

	key := req.Header.Get(common.HeaderKey)
	if key == "" {
		return fail(http.StatusBadRequest, "missing key")
	}

	value, err := transfer.ReceiveBody(ctx, req.Body, transfer.Options{
		DeclaredLength: req.ContentLength,
		Encoding:       req.Header.Get(common.HeaderContentEncoding),
		MaxDecodedSize: h.MaxDecodedSize,
	})
	if err != nil {
		return transferError(ctx, h.logger, key, err)
	}

	if _, err := b.AddResource(ctx, key, value, true); err != nil {
		return h.backendError(ctx, b, "put", err)
	}
	return okText("stored")
}

func (h *StorageHandlers) Delete(ctx context.Context, req *Request) Result {
	b, res, found := h.backend(req)
	if !found {
		return res
	}

	key := req.Header.Get(common.HeaderKey)
	if key == "" {
		return fail(http.StatusBadRequest, "missing key")
	}

	if err := b.RemoveResource(ctx, key); err != nil {
		return h.backendError(ctx, b, "delete", err)
	}
	return okText("deleted")
}

func (h *StorageHandlers) backendError(ctx context.Context, b storage.Backend, op string, err error) Result {
	if errors.Is(err, storage.ErrNotFound) {
		return fail(http.StatusNotFound, "key not found")
	}
	h.logger.Error(ctx, "storage "+op+" failed", "storage", b.Name(), "error", err)
	return fail(http.StatusInternalServerError, "internal error")
}

func ok200(body []byte, contentType string) Result {
	res := ok(body)
	res.setHeader(common.HeaderContentType, contentType)
	return res
}
