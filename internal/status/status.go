package status

import "errors"

// Error taxonomy of the exchange engine. Every public service operation
// returns one of these (wrapped with call-site context) so handlers can map
// them to a response without inspecting message strings. All of them are
// recoverable; none is treated as process-fatal.
var (
	ErrNotAuthenticated   = errors.New("auth: not authenticated")
	ErrNotFound           = errors.New("store: record not found")
	ErrNotOwner           = errors.New("exchange: caller does not own the ticket")
	ErrNotAuthorized      = errors.New("exchange: caller is not a party to the request")
	ErrInvalidState       = errors.New("exchange: request is not in the required state")
	ErrInvalidTarget      = errors.New("exchange: invalid exchange target")
	ErrTicketsNotActive   = errors.New("exchange: tickets are not both active")
	ErrDuplicateRequest   = errors.New("exchange: pending request already exists for this ticket pair")
	ErrBackendUnavailable = errors.New("store: backend unavailable")
)
