package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/pipeline"
	"github.com/use-agent/stockroom/store"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeUnknownBrand    = "UNKNOWN_BRAND"
	ErrCodeDuplicateBrand  = "DUPLICATE_BRAND"
	ErrCodeAdapterFetch    = "ADAPTER_FETCH"
	ErrCodeNormalization   = "NORMALIZATION"
	ErrCodeRunCancelled    = "RUN_CANCELLED"
	ErrCodeRunNotFound     = "RUN_NOT_FOUND"
	ErrCodeProductNotFound = "PRODUCT_NOT_FOUND"
	ErrCodeStoreWrite      = "STORE_WRITE"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInternal        = "INTERNAL"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IngestError is the API-boundary error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type IngestError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// NewIngestError creates a new IngestError.
func NewIngestError(code, message string, err error) *IngestError {
	return &IngestError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *IngestError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Classify maps a domain error to an IngestError with the matching code.
// Errors that already carry a code pass through unchanged; everything
// unrecognized becomes INTERNAL.
//
// Order matters: a fetch error may wrap a context deadline, and the more
// specific classification should win.
func Classify(err error) *IngestError {
	var ingErr *IngestError
	if errors.As(err, &ingErr) {
		return ingErr
	}

	var (
		unknownBrand *adapter.UnknownBrandError
		dupBrand     *adapter.DuplicateBrandError
		fetchErr     *adapter.FetchError
		normErr      *catalog.NormalizationError
		persistErr   *pipeline.PersistError
	)
	switch {
	case errors.As(err, &unknownBrand):
		return NewIngestError(ErrCodeUnknownBrand, unknownBrand.Error(), err)
	case errors.As(err, &dupBrand):
		return NewIngestError(ErrCodeDuplicateBrand, dupBrand.Error(), err)
	case errors.As(err, &persistErr):
		return NewIngestError(ErrCodeStoreWrite, persistErr.Error(), err)
	case errors.As(err, &fetchErr):
		return NewIngestError(ErrCodeAdapterFetch, fetchErr.Error(), err)
	case errors.As(err, &normErr):
		return NewIngestError(ErrCodeNormalization, normErr.Error(), err)
	case errors.Is(err, store.ErrNotFound):
		return NewIngestError(ErrCodeProductNotFound, err.Error(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewIngestError(ErrCodeRunCancelled, err.Error(), err)
	default:
		return NewIngestError(ErrCodeInternal, err.Error(), err)
	}
}
