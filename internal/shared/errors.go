package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRange indicates a report date range that cannot be served.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrInvalidRequest indicates report parameters that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)
