package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"swapstadium/internal/status"
)

// writeError maps an engine error to an HTTP status and the discriminated
// {success, error} body the client renders inline. No engine error is ever
// translated into a bare 500.
func writeError(e *core.RequestEvent, err error) error {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, status.ErrNotAuthenticated):
		code = http.StatusUnauthorized
	case errors.Is(err, status.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, status.ErrNotOwner), errors.Is(err, status.ErrNotAuthorized):
		code = http.StatusForbidden
	case errors.Is(err, status.ErrInvalidState), errors.Is(err, status.ErrDuplicateRequest):
		code = http.StatusConflict
	case errors.Is(err, status.ErrBackendUnavailable):
		code = http.StatusServiceUnavailable
	}

	return e.JSON(code, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func writeOK(e *core.RequestEvent, payload map[string]any) error {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	return e.JSON(http.StatusOK, body)
}

// callerID returns the authenticated user id, or "" when the request has
// no auth record (the services turn that into ErrNotAuthenticated).
func callerID(e *core.RequestEvent) string {
	if e.Auth == nil {
		return ""
	}
	return e.Auth.Id
}
