package storage

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound   = errors.New("note not found")
	ErrEmptyKey   = errors.New("storage key must not be empty")
	ErrInvalidKey = errors.New("storage key is not a valid note path")

	// ErrEmptyNote indicates a note with no text beyond whitespace.
	ErrEmptyNote = errors.New("note text is empty")
	// ErrNotText indicates note bytes that are not UTF-8 text or carry a NUL.
	ErrNotText = errors.New("note is not plain text")
	// ErrNoteTooLarge indicates a stored note larger than MaxNoteSize.
	ErrNoteTooLarge = errors.New("note exceeds maximum size")
)

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoteTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrEmptyKey),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrEmptyNote),
		errors.Is(err, ErrNotText):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
