package httpx

import (
	"errors"
	"net/http"

	"github.com/groupgate/groupgate/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateName), errors.Is(err, shared.ErrDuplicateLabel):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrCycle):
		Problem(w, http.StatusConflict, "Hierarchy Cycle", err.Error())
	case errors.Is(err, shared.ErrInvalidParent):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Parent", err.Error())
	case errors.Is(err, shared.ErrReserved):
		Problem(w, http.StatusForbidden, "Reserved Entity", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
