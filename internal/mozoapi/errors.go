package mozoapi

import (
	"fmt"
	"net/http"

	"MozoPOS/internal/mozoapi/models"

	"github.com/pkg/errors"
)

// ErrMalformedResponse means the backend acknowledged the request but the body
// did not carry the expected entity.
var ErrMalformedResponse = errors.New("response without expected payload")

// TransportError is a failure before any HTTP status was read: timeout,
// refused or reset connection, truncated reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Cause() error {
	return e.Err
}

// IsAmbiguous reports whether err leaves open if the server applied the
// request.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrMalformedResponse) {
		return true
	}
	var apiErr *models.ErrorAPI
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusBadGateway || apiErr.Status == http.StatusGatewayTimeout
	}
	return false
}

// AsAPIError returns the backend error body carried by err, if any.
func AsAPIError(err error) (*models.ErrorAPI, bool) {
	var apiErr *models.ErrorAPI
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
