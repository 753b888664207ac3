package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"swapstadium/internal/status"
)

// notFoundOr converts a store read error into the engine taxonomy: missing
// rows become ErrNotFound, anything else is a transient backend failure.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, status.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", what, status.ErrBackendUnavailable, err)
}

// saveErr converts a store write error. Unique index violations on the
// pending-pair index surface as duplicate requests; the rest is backend
// trouble.
func saveErr(err error, what string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", what, status.ErrDuplicateRequest)
	}
	return fmt.Errorf("%s: %w: %v", what, status.ErrBackendUnavailable, err)
}
