// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/salesops/salesops/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Only parameter
// errors carry their message to the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidRange):
		Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
	case errors.Is(err, shared.ErrInvalidRequest):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "report computation exceeded the request timeout")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
