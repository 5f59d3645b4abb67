package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard error response body
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorCode Code   `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteHTTP writes err as a JSON error response. Internal failures are
// masked with a generic message so causes never leak to clients.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	code := GetCode(err)

	message := err.Error()
	if code == CodeInternal || code == CodeInfrastructure {
		message = "service unavailable"
		if code == CodeInternal {
			message = "internal server error"
		}
	}

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
