package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
)

// Respond writes body as JSON with the given status.
func Respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// RespondError writes {"error": reason} with the status matching the error kind. It is
// the inverse of the mapping Client.Do applies to responses.
func RespondError(w http.ResponseWriter, err error) {
	Respond(w, StatusFor(err), map[string]string{"error": errs.Reason(err)})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrGateway):
		return http.StatusPaymentRequired
	case errors.Is(err, errs.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
