package handlers

import (
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"swapstadium/services"
)

type ExchangeHandler struct {
	app     *pocketbase.PocketBase
	service *services.ExchangeService
}

func NewExchangeHandler(app *pocketbase.PocketBase, service *services.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{
		app:     app,
		service: service,
	}
}

// CreateRequest - propose an exchange between the caller's ticket and
// someone else's
func (h *ExchangeHandler) CreateRequest(e *core.RequestEvent) error {
	var req struct {
		FromTicketID string `json:"from_ticket_id"`
		ToTicketID   string `json:"to_ticket_id"`
		Message      string `json:"message"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.service.CreateRequest(e.Request.Context(), callerID(e), req.FromTicketID, req.ToTicketID, req.Message)
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"request": result})
}

// Accept - legacy one-shot accept, finalizes the swap immediately
func (h *ExchangeHandler) Accept(e *core.RequestEvent) error {
	result, err := h.service.Accept(e.Request.Context(), callerID(e), e.Request.PathValue("id"))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"request": result})
}

// AcceptWithSelection - accept, optionally substituting another of the
// recipient's active tickets; finalization waits for both confirmations
func (h *ExchangeHandler) AcceptWithSelection(e *core.RequestEvent) error {
	var req struct {
		SelectedTicketID string `json:"selected_ticket_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.service.AcceptWithSelection(e.Request.Context(), callerID(e), e.Request.PathValue("id"), req.SelectedTicketID)
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"request": result})
}

// Reject - decline an incoming pending request
func (h *ExchangeHandler) Reject(e *core.RequestEvent) error {
	result, err := h.service.Reject(e.Request.Context(), callerID(e), e.Request.PathValue("id"))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"request": result})
}

// Cancel - requester withdraws a pending or accepted request
func (h *ExchangeHandler) Cancel(e *core.RequestEvent) error {
	result, err := h.service.Cancel(e.Request.Context(), callerID(e), e.Request.PathValue("id"))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"request": result})
}

// ConfirmComplete - record the caller's side of the two-party completion
func (h *ExchangeHandler) ConfirmComplete(e *core.RequestEvent) error {
	result, err := h.service.ConfirmComplete(e.Request.Context(), callerID(e), e.Request.PathValue("id"))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"request": result})
}

// ListIncoming - requests targeting the caller's tickets, newest first
func (h *ExchangeHandler) ListIncoming(e *core.RequestEvent) error {
	result, err := h.service.ListIncoming(e.Request.Context(), callerID(e))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"requests": result})
}

// ListOutgoing - requests issued by the caller, newest first
func (h *ExchangeHandler) ListOutgoing(e *core.RequestEvent) error {
	result, err := h.service.ListOutgoing(e.Request.Context(), callerID(e))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"requests": result})
}
