// Package httputil writes JSON responses and coded error envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "innexbot/pkg/domain-errors"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Field       string `json:"field,omitempty"`
}

// fieldError is implemented by errors that point at one request field.
type fieldError interface {
	FieldName() string
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error to its status and envelope. Internal errors
// never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = dErrors.MessageOf(err)
		var fe fieldError
		if errors.As(err, &fe) {
			resp.Field = fe.FieldName()
		}
	}
	WriteJSON(w, dErrors.HTTPStatus(code), resp)
}
