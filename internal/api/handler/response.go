package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// encodeFailureBody is sent when a response value cannot be marshaled.
const encodeFailureBody = `{"error":"internal_error","message":"failed to encode response"}` + "\n"

// JSON writes data with status. If data cannot be marshaled the client gets
// a 500 error body instead and the failure is logged.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	if data == nil {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode response", "status", status, "type", fmt.Sprintf("%T", data), "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodeFailureBody))
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Debug("failed to write response", "status", status, "error", err)
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
