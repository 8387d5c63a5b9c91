package server

import (
	"encoding/json"
	"net/http"

	"github.com/moamenhredeen/oasgate/internal/validator"
)

// Error codes used in JSON error bodies
const (
	CodeNotFound           = "not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeValidation         = "validation_failed"
	CodeNotAcceptable      = "not_acceptable"
	CodeRateLimited        = "rate_limited"
	CodeTimeout            = "handler_timeout"
	CodeInternal           = "internal_error"
	CodeResponseValidation = "response_validation_failed"
)

// ErrorBody is the JSON body of every response the gateway produces itself
type ErrorBody struct {
	Error      string                `json:"error"`
	Message    string                `json:"message"`
	RequestID  string                `json:"request_id,omitempty"`
	Violations []validator.Violation `json:"violations,omitempty"`
	Allowed    []string              `json:"allowed,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, body)
}
