package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jbj338033/flick-api/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is a 500 and the detail stays in the server log.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL"})
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindBusinessRule:
		status = http.StatusUnprocessableEntity
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": ae.Code, "message": ae.Message})
}
