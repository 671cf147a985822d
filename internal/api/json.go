package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg, code string) errResponse {
	return errResponse{Error: msg, Code: code}
}

// respondError translates a domain error into its boundary status and code.
func respondError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), errorBody(err.Error(), apperr.Code(err)))
}
