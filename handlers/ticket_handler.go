package handlers

import (
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"swapstadium/models"
	"swapstadium/services"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	service *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, service *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:     app,
		service: service,
	}
}

// Create - list a new ticket for exchange or giveaway
func (h *TicketHandler) Create(e *core.RequestEvent) error {
	var in services.TicketInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.service.Create(e.Request.Context(), callerID(e), in)
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"ticket": ticket})
}

// Get - fetch one ticket by id
func (h *TicketHandler) Get(e *core.RequestEvent) error {
	ticket, err := h.service.GetByID(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"ticket": ticket})
}

// ListMine - the caller's own tickets, newest first
func (h *TicketHandler) ListMine(e *core.RequestEvent) error {
	tickets, err := h.service.ListByOwner(e.Request.Context(), callerID(e))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"tickets": tickets})
}

// ListPublic - active tickets of other users available for exchange
func (h *TicketHandler) ListPublic(e *core.RequestEvent) error {
	tickets, err := h.service.ListPublicActive(e.Request.Context(), callerID(e))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"tickets": tickets})
}

// UpdateStatus - owner changes a ticket's lifecycle status
func (h *TicketHandler) UpdateStatus(e *core.RequestEvent) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.service.UpdateStatus(e.Request.Context(), callerID(e), e.Request.PathValue("id"), models.TicketStatus(req.Status))
	if err != nil {
		return writeError(e, err)
	}

	return writeOK(e, map[string]any{"ticket": ticket})
}

// Delete - owner removes an active listing
func (h *TicketHandler) Delete(e *core.RequestEvent) error {
	if err := h.service.Delete(e.Request.Context(), callerID(e), e.Request.PathValue("id")); err != nil {
		return writeError(e, err)
	}

	return writeOK(e, nil)
}
