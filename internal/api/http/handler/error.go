package handler

import (
	"encoding/json"
	"net/http"

	"github.com/keyward/keyward-server/internal/auth"
	"github.com/keyward/keyward-server/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps an error kind to an HTTP status code. The switch is total:
// anything unclassified is treated as a server fault.
func statusOf(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidArgument, auth.KindBadRequest, auth.KindInvalidRefreshKey:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs the full diagnostic detail and writes the generic
// user-facing message. Internal causes never reach the response body.
func handleError(w http.ResponseWriter, l *logger.Logger, err error) {
	kind := auth.KindOf(err)
	message := "An internal error occurred."
	detail := err.Error()

	if e, ok := err.(*auth.Error); ok {
		message = e.Message
		detail = e.Cause()
	}

	l.Error("Handler: request failed", "kind", kind.String(), "cause", detail)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(kind))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
