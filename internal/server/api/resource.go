package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/storage"
	"github.com/dmitrijs2005/resvault/internal/server/transfer"
)

type ResourceHandlers struct {
	store  *storage.ResourceStore
	logger logging.Logger

	// MaxDecodedSize caps what an encoded upload may inflate to; zero
	// means transfer.DefaultMaxDecodedSize.
	MaxDecodedSize int64
}

func NewResourceHandlers(store *storage.ResourceStore, logger logging.Logger) *ResourceHandlers {
	return &ResourceHandlers{store: store, logger: logger.With("module", "resource")}
}

// Download streams the resource named by the identifier header, paced by
// the transfer-speed header.
func (h *ResourceHandlers) Download(ctx context.Context, req *Request) Result {
	id := req.Header.Get(common.HeaderIdentifier)
	if id == "" {
		return fail(http.StatusBadRequest, "missing identifier")
	}

	f, size, err := h.store.Open(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fail(http.StatusNotFound, "resource not found")
	case errors.Is(err, common.ErrorInvalidName):
		return fail(http.StatusBadRequest, "invalid identifier")
	case err != nil:
		h.logger.Error(ctx, "open resource failed", "identifier", id, "error", err)
		return fail(http.StatusInternalServerError, "internal error")
	}

	return Result{
		Succeeded:    true,
		Status:       http.StatusOK,
		Stream:       f,
		StreamLength: size,
		Limit:        transfer.ParseSpeed(req.Header.Get(common.HeaderTransferSpeed)),
	}
}

// Upload pipes the body into the resource store. The new content becomes
// visible only once the whole body arrived; failures leave nothing behind.
func (h *ResourceHandlers) Upload(ctx context.Context, req *Request) Result {
	id := req.Header.Get(common.HeaderIdentifier)
	if id == "" {
		return fail(http.StatusBadRequest, "missing identifier")
	}

	sink, err := h.store.Create(id)
	if errors.Is(err, common.ErrorInvalidName) {
		return fail(http.StatusBadRequest, "invalid identifier")
	}
	if err != nil {
		h.logger.Error(ctx, "create resource failed", "identifier", id, "error", err)
		return fail(http.StatusInternalServerError, "internal error")
	}

	_, err = transfer.ReceiveBody(ctx, req.Body, transfer.Options{
		DeclaredLength: req.ContentLength,
		Encoding:       req.Header.Get(common.HeaderContentEncoding),
		Sink:           sink,
		MaxDecodedSize: h.MaxDecodedSize,
	})
	if err != nil {
		return transferError(ctx, h.logger, id, err)
	}

	return okText("stored")
}

func transferError(ctx context.Context, logger logging.Logger, subject string, err error) Result {
	status := transfer.StatusOf(err)
	if errors.Is(err, transfer.ErrAborted) {
		logger.Warn(ctx, "transfer aborted", "subject", subject, "error", err)
	} else if status >= http.StatusInternalServerError {
		logger.Error(ctx, "transfer failed", "subject", subject, "error", err)
	}
	return fail(status, http.StatusText(status))
}
