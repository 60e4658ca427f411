package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/campaign-core/internal/pkg/logger"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes data with the given status. Encoding failures can't change
// the status once headers are out, so they are only logged.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("json encode failed", "status", status, "error", err)
	}
}

func OK(w http.ResponseWriter, data any) { JSON(w, http.StatusOK, data) }

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

func BadRequest(w http.ResponseWriter, message string) { Error(w, http.StatusBadRequest, message) }

func NotFound(w http.ResponseWriter, message string) { Error(w, http.StatusNotFound, message) }

// Unprocessable answers 422 for a well-formed request that failed
// validation, with the per-field errors in Details.
func Unprocessable(w http.ResponseWriter, message string, details any) {
	JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   message,
		Code:    "validation_failed",
		Details: details,
	})
}

// InternalError logs err and answers a generic 500.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}

// Decode strictly unmarshals a JSON request body into dst. Unknown fields
// and bodies over MaxBodyBytes are rejected. On failure it writes a 400 and
// returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
