package server

import (
	"chat-relay/errors"
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps err to its status code. fallback is the message used for
// unclassified failures, which are logged and never leaked to the client.
func writeError(log *slog.Logger, w http.ResponseWriter, err error, fallback string) {
	status := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error(fallback, "error", err)
		writeMessage(w, status, fallback)
		return
	}
	writeMessage(w, status, publicMessage(err))
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrInvalidCredentials):
		return "Invalid credentials!"
	case errors.Is(err, errors.ErrUserAlreadyExists):
		return "User already exists!"
	case errors.Is(err, errors.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, errors.ErrMessageNotFound):
		return "Message not found"
	case errors.Is(err, errors.ErrForbidden):
		return "You can only change your own messages"
	case errors.Is(err, errors.ErrAuthRejected):
		return "Unauthorized"
	default:
		return err.Error()
	}
}
