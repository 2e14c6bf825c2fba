package transfer

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrLengthRequired is returned when an inbound body carries no declared length.
	ErrLengthRequired = errors.New("length required")

	// ErrPayloadTooLarge is returned as soon as the body outgrows its declared length.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrAborted covers client disconnects and source stream failures.
	ErrAborted = errors.New("transfer aborted")

	// ErrSink is returned when the sink rejects a write or fails to close.
	ErrSink = errors.New("sink failure")

	// ErrUnsupportedEncoding is returned for content-encoding values no decoder handles.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrMalformedBody is returned when an encoded body fails to decode.
	ErrMalformedBody = errors.New("malformed encoded body")
)

// Error pairs a transfer failure with the status it maps to on the wire.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer failed (%d): %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status int, err error) *Error {
	return &Error{Status: status, Err: err}
}

// StatusOf returns the wire status for err: the status carried by an
// *Error, or 500 for anything else.
func StatusOf(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Status
	}
	return http.StatusInternalServerError
}
