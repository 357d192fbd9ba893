package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// StatusCoder is implemented by typed domain errors that know their HTTP status.
type StatusCoder interface {
	ProblemStatus() int
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var coded StatusCoder
	switch {
	case errors.As(err, &coded):
		status := coded.ProblemStatus()
		Problem(w, status, http.StatusText(status), err.Error())
	case errors.Is(err, db.ErrTransactionFailed):
		Problem(w, http.StatusInternalServerError, "Transaction Failed", "transaction failed, retry")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
