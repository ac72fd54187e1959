// Package httpapi exposes the KeyWarden server over HTTP. Handlers stay
// thin: decode, call a service, map sentinel errors to status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/keywarden/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the service error taxonomy onto HTTP status codes. Internal
// details never leak: unknown errors become a bare 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, common.ErrContactNotEligible):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: common.ErrContactNotEligible.Error()})
	case errors.Is(err, common.ErrInactivityThresholdNotMet):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrInactivityThresholdNotMet.Error()})
	case errors.Is(err, common.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrDuplicateRequest.Error()})
	case errors.Is(err, common.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrVersionConflict.Error()})
	case errors.Is(err, common.ErrAlreadyResolved):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrAlreadyResolved.Error()})
	case errors.Is(err, common.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: common.ErrIllegalTransition.Error()})
	case errors.Is(err, common.ErrRecordUnavailable):
		writeJSON(w, http.StatusGone, errorResponse{Error: common.ErrRecordUnavailable.Error()})
	case errors.Is(err, common.ErrWeakDerivationInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: common.ErrWeakDerivationInput.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
