package pipeline

import (
	"errors"
	"net/http"
)

// Domain errors for pipeline operations.
var (
	ErrNotFound       = errors.New("batch not found")
	ErrDuplicate      = errors.New("batch already exists")
	ErrNotAList       = errors.New("input must be a list of documents")
	ErrInvalidInput   = errors.New("invalid batch input")
	ErrNotCompleted   = errors.New("batch has not completed")
	ErrNothingToRetry = errors.New("batch has no failed documents")
	ErrShuttingDown   = errors.New("pipeline is shutting down")
)

// MapHTTPStatus maps pipeline domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrNotAList) || errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotCompleted) || errors.Is(err, ErrNothingToRetry) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrShuttingDown) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
