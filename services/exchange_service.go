package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"swapstadium/internal/status"
	"swapstadium/models"
	"swapstadium/monitoring"
)

// ExchangeService is the exchange-request engine. It owns the request
// state machine (pending -> accepted -> completed, with rejected and
// cancelled as the other terminal states) and the two-sided completion
// protocol. Every mutation re-reads the request inside a store transaction
// and re-checks party and state there, so a stale read can never produce
// an illegal transition.
type ExchangeService struct {
	app      core.App
	notifier *Notifier
}

func NewExchangeService(app core.App, notifier *Notifier) *ExchangeService {
	return &ExchangeService{
		app:      app,
		notifier: notifier,
	}
}

// CreateRequest proposes swapping the caller's fromTicketID against
// toTicketID owned by someone else. Both tickets must be active and the
// target must be an exchange-category ticket. The duplicate pre-read gives
// a friendly error for the common case; the partial unique index on
// (from_ticket, to_ticket, status=pending) is what actually guarantees
// uniqueness under concurrent creates.
func (s *ExchangeService) CreateRequest(ctx context.Context, callerID, fromTicketID, toTicketID, message string) (req *models.ExchangeRequest, err error) {
	defer s.track("create", time.Now(), &err)

	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}
	if fromTicketID == "" || toTicketID == "" || fromTicketID == toTicketID {
		return nil, fmt.Errorf("a ticket cannot be exchanged against itself: %w", status.ErrInvalidTarget)
	}

	fromRec, err := s.app.FindRecordById("tickets", fromTicketID)
	if err != nil {
		return nil, notFoundOr(err, "source ticket "+fromTicketID)
	}
	toRec, err := s.app.FindRecordById("tickets", toTicketID)
	if err != nil {
		return nil, notFoundOr(err, "target ticket "+toTicketID)
	}

	from := models.TicketFromRecord(fromRec)
	to := models.TicketFromRecord(toRec)

	if from.Owner != callerID {
		return nil, fmt.Errorf("source ticket %s: %w", fromTicketID, status.ErrNotOwner)
	}
	if to.Owner == callerID {
		return nil, fmt.Errorf("cannot target own ticket: %w", status.ErrInvalidTarget)
	}
	if !from.IsActive() || !to.IsActive() {
		return nil, status.ErrTicketsNotActive
	}
	if to.Category != models.TicketCategoryExchange {
		return nil, fmt.Errorf("target ticket is a %s listing: %w", to.Category, status.ErrInvalidTarget)
	}

	existing, err := s.app.FindRecordsByFilter(
		"exchange_requests",
		"from_ticket = {:from} && to_ticket = {:to} && status = {:status}",
		"",
		1,
		0,
		dbx.Params{"from": fromTicketID, "to": toTicketID, "status": string(models.ExchangePending)},
	)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w: %v", status.ErrBackendUnavailable, err)
	}
	if len(existing) > 0 {
		return nil, status.ErrDuplicateRequest
	}

	collection, err := s.app.FindCollectionByNameOrId("exchange_requests")
	if err != nil {
		return nil, notFoundOr(err, "exchange_requests collection")
	}

	record := core.NewRecord(collection)
	record.Set("from_ticket", fromTicketID)
	record.Set("to_ticket", toTicketID)
	record.Set("from_user", from.Owner)
	record.Set("to_user", to.Owner)
	record.Set("status", string(models.ExchangePending))
	record.Set("message", message)
	record.Set("from_confirmed", false)
	record.Set("to_confirmed", false)

	if err := s.app.Save(record); err != nil {
		return nil, saveErr(err, "create request")
	}

	req = models.ExchangeRequestFromRecord(record)
	s.notifier.NotifyRequestEvent("created", req.ID, req.ToUser)
	return req, nil
}

// Accept finalizes a pending request in one step: both tickets flip to
// completed and the request is closed with both confirmations set.
//
// Deprecated: this is the legacy one-shot path kept for older clients.
// AcceptWithSelection plus ConfirmComplete is the authoritative flow.
func (s *ExchangeService) Accept(ctx context.Context, callerID, requestID string) (req *models.ExchangeRequest, err error) {
	defer s.track("accept", time.Now(), &err)

	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		record, cur, err := s.loadRequest(txApp, requestID)
		if err != nil {
			return err
		}
		if cur.ToUser != callerID {
			return fmt.Errorf("request %s: %w", requestID, status.ErrNotAuthorized)
		}
		if cur.Status != models.ExchangePending {
			return fmt.Errorf("request %s is %s: %w", requestID, cur.Status, status.ErrInvalidState)
		}

		if err := finalizeTickets(txApp, cur.FromTicket, cur.ToTicket); err != nil {
			return err
		}

		record.Set("status", string(models.ExchangeCompleted))
		record.Set("from_confirmed", true)
		record.Set("to_confirmed", true)
		if err := txApp.Save(record); err != nil {
			return saveErr(err, "accept request")
		}

		req = models.ExchangeRequestFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRequestEvent("completed", req.ID, req.FromUser, req.ToUser)
	return req, nil
}

// AcceptWithSelection moves a pending request to accepted, optionally
// substituting a different active ticket of the recipient for the one the
// requester targeted. Tickets do not change status here; they finalize
// once both parties have called ConfirmComplete.
func (s *ExchangeService) AcceptWithSelection(ctx context.Context, callerID, requestID, selectedTicketID string) (req *models.ExchangeRequest, err error) {
	defer s.track("accept_with_selection", time.Now(), &err)

	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		record, cur, err := s.loadRequest(txApp, requestID)
		if err != nil {
			return err
		}
		if cur.ToUser != callerID {
			return fmt.Errorf("request %s: %w", requestID, status.ErrNotAuthorized)
		}
		if cur.Status != models.ExchangePending {
			return fmt.Errorf("request %s is %s: %w", requestID, cur.Status, status.ErrInvalidState)
		}

		if selectedTicketID != "" && selectedTicketID != cur.ToTicket {
			selRec, err := txApp.FindRecordById("tickets", selectedTicketID)
			if err != nil {
				return notFoundOr(err, "selected ticket "+selectedTicketID)
			}
			sel := models.TicketFromRecord(selRec)
			if sel.Owner != callerID {
				return fmt.Errorf("selected ticket %s: %w", selectedTicketID, status.ErrNotOwner)
			}
			if !sel.IsActive() {
				return fmt.Errorf("selected ticket %s: %w", selectedTicketID, status.ErrTicketsNotActive)
			}
			record.Set("selected_from_ticket", selectedTicketID)
		}

		record.Set("status", string(models.ExchangeAccepted))
		if err := txApp.Save(record); err != nil {
			return saveErr(err, "accept request")
		}

		req = models.ExchangeRequestFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRequestEvent("accepted", req.ID, req.FromUser)
	return req, nil
}

// Reject declines a pending request. Recipient only; tickets are left
// untouched.
func (s *ExchangeService) Reject(ctx context.Context, callerID, requestID string) (req *models.ExchangeRequest, err error) {
	defer s.track("reject", time.Now(), &err)

	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		record, cur, err := s.loadRequest(txApp, requestID)
		if err != nil {
			return err
		}
		if cur.ToUser != callerID {
			return fmt.Errorf("request %s: %w", requestID, status.ErrNotAuthorized)
		}
		if cur.Status != models.ExchangePending {
			return fmt.Errorf("request %s is %s: %w", requestID, cur.Status, status.ErrInvalidState)
		}

		record.Set("status", string(models.ExchangeRejected))
		if err := txApp.Save(record); err != nil {
			return saveErr(err, "reject request")
		}

		req = models.ExchangeRequestFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRequestEvent("rejected", req.ID, req.FromUser)
	return req, nil
}

// Cancel withdraws a request. Requester only, while pending or accepted.
// Tickets only finalize at completion, so there is never ticket state to
// roll back here.
func (s *ExchangeService) Cancel(ctx context.Context, callerID, requestID string) (req *models.ExchangeRequest, err error) {
	defer s.track("cancel", time.Now(), &err)

	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		record, cur, err := s.loadRequest(txApp, requestID)
		if err != nil {
			return err
		}
		if cur.FromUser != callerID {
			return fmt.Errorf("request %s: %w", requestID, status.ErrNotAuthorized)
		}
		if cur.Status != models.ExchangePending && cur.Status != models.ExchangeAccepted {
			return fmt.Errorf("request %s is %s: %w", requestID, cur.Status, status.ErrInvalidState)
		}

		record.Set("status", string(models.ExchangeCancelled))
		if err := txApp.Save(record); err != nil {
			return saveErr(err, "cancel request")
		}

		req = models.ExchangeRequestFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyRequestEvent("cancelled", req.ID, req.ToUser)
	return req, nil
}

// ConfirmComplete records the caller's completion confirmation on an
// accepted request. Confirming twice from the same side is a benign no-op.
// When the second side confirms, the request completes and both effective
// tickets flip to completed inside the same transaction.
func (s *ExchangeService) ConfirmComplete(ctx context.Context, callerID, requestID string) (req *models.ExchangeRequest, err error) {
	defer s.track("confirm_complete", time.Now(), &err)

	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	completed := false
	err = s.app.RunInTransaction(func(txApp core.App) error {
		record, cur, err := s.loadRequest(txApp, requestID)
		if err != nil {
			return err
		}
		if !cur.IsParty(callerID) {
			return fmt.Errorf("request %s: %w", requestID, status.ErrNotAuthorized)
		}
		if cur.Status != models.ExchangeAccepted {
			return fmt.Errorf("request %s is %s: %w", requestID, cur.Status, status.ErrInvalidState)
		}

		field := "to_confirmed"
		if callerID == cur.FromUser {
			field = "from_confirmed"
		}
		if record.GetBool(field) {
			// already confirmed by this side; report current state
			req = cur
			return nil
		}
		record.Set(field, true)

		if record.GetBool("from_confirmed") && record.GetBool("to_confirmed") {
			if err := finalizeTickets(txApp, cur.FromTicket, cur.EffectiveToTicket()); err != nil {
				return err
			}
			record.Set("status", string(models.ExchangeCompleted))
			completed = true
		}

		if err := txApp.Save(record); err != nil {
			return saveErr(err, "confirm request")
		}

		req = models.ExchangeRequestFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.notifier.NotifyRequestEvent("completed", req.ID, req.FromUser, req.ToUser)
	}
	return req, nil
}

// ListIncoming returns all requests targeting the caller, newest first.
func (s *ExchangeService) ListIncoming(ctx context.Context, callerID string) ([]*models.ExchangeRequest, error) {
	return s.listByParty(callerID, "to_user")
}

// ListOutgoing returns all requests issued by the caller, newest first.
func (s *ExchangeService) ListOutgoing(ctx context.Context, callerID string) ([]*models.ExchangeRequest, error) {
	return s.listByParty(callerID, "from_user")
}

func (s *ExchangeService) listByParty(callerID, field string) ([]*models.ExchangeRequest, error) {
	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	filter := fmt.Sprintf("%s = {:user}", field)
	params := dbx.Params{"user": callerID}

	records, err := s.app.FindRecordsByFilter("exchange_requests", filter, "-created", 0, 0, params)
	if err != nil {
		// sorted query lost its index; degrade to an unordered fetch and
		// sort client-side instead of failing the screen
		records, err = s.app.FindRecordsByFilter("exchange_requests", filter, "", 0, 0, params)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w: %v", status.ErrBackendUnavailable, err)
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].GetDateTime("created").Time().After(records[j].GetDateTime("created").Time())
		})
	}

	out := make([]*models.ExchangeRequest, 0, len(records))
	for _, r := range records {
		out = append(out, models.ExchangeRequestFromRecord(r))
	}
	return out, nil
}

// loadRequest fetches a request row for mutation inside a transaction.
func (s *ExchangeService) loadRequest(txApp core.App, requestID string) (*core.Record, *models.ExchangeRequest, error) {
	record, err := txApp.FindRecordById("exchange_requests", requestID)
	if err != nil {
		return nil, nil, notFoundOr(err, "request "+requestID)
	}
	return record, models.ExchangeRequestFromRecord(record), nil
}

// finalizeTickets flips both exchanged tickets to completed. Must run
// inside the caller's transaction so a failure leaves no partial state.
func finalizeTickets(txApp core.App, ticketIDs ...string) error {
	for _, id := range ticketIDs {
		record, err := txApp.FindRecordById("tickets", id)
		if err != nil {
			return notFoundOr(err, "ticket "+id)
		}
		record.Set("status", string(models.TicketStatusCompleted))
		if err := txApp.Save(record); err != nil {
			return saveErr(err, "finalize ticket "+id)
		}
	}
	return nil
}

func (s *ExchangeService) track(operation string, started time.Time, err *error) {
	outcome := "ok"
	if err != nil && *err != nil {
		outcome = "error"
	}
	monitoring.TrackExchangeOperation(operation, outcome)
	monitoring.ObserveExchangeDuration(operation, time.Since(started))
}
