// Package httputil provides JSON response helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "proofpals/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed JSON body")
	}
	return nil
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// statusOf maps domain error codes to HTTP statuses. Business-rule
// rejections are 409s: the request was well-formed, the engine's state
// says no.
func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidRing, dErrors.CodeInvalidProof:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConflict, dErrors.CodeAlreadyIssued, dErrors.CodeSubmissionClosed,
		dErrors.CodeDuplicateVote, dErrors.CodeNotEscalated, dErrors.CodeAlreadyResolved:
		return http.StatusConflict
	case dErrors.CodeRingUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError translates err into a coded JSON error response. Non-domain
// errors are logged and surfaced as opaque 500s.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		if logger != nil {
			logger.Error("unhandled error", "error", err)
		}
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: string(dErrors.CodeInternal)})
		return
	}
	WriteJSON(w, statusOf(de.Code), errorBody{Error: string(de.Code), ErrorDescription: de.Message})
}
