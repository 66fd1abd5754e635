// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("malformed request")
)

var kindStatus = map[shared.Kind]struct {
	status int
	title  string
}{
	shared.KindValidation:            {http.StatusBadRequest, "Validation Failed"},
	shared.KindNotFound:              {http.StatusNotFound, "Not Found"},
	shared.KindNumberingExhausted:    {http.StatusConflict, "Numbering Exhausted"},
	shared.KindConcurrencyConflict:   {http.StatusConflict, "Conflict"},
	shared.KindInvariantViolation:    {http.StatusConflict, "Invalid State"},
	shared.KindResourceUnavailable:   {http.StatusServiceUnavailable, "Resource Unavailable"},
	shared.KindExternalAuthorization: {http.StatusBadGateway, "Authorization Failed"},
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	if classified, ok := shared.AsError(err); ok {
		if mapped, ok := kindStatus[classified.Kind]; ok {
			JSON(w, mapped.status, ProblemDetail{
				Type:   "urn:settlement:" + string(classified.Kind),
				Title:  mapped.title,
				Status: mapped.status,
				Detail: classified.Error(),
				Reason: classified.Reason,
			})
			return
		}
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
