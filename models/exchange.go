package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
)

type ExchangeStatus string

const (
	ExchangePending   ExchangeStatus = "pending"
	ExchangeAccepted  ExchangeStatus = "accepted"
	ExchangeRejected  ExchangeStatus = "rejected"
	ExchangeCancelled ExchangeStatus = "cancelled"
	ExchangeCompleted ExchangeStatus = "completed"
)

// Terminal reports whether no further transition is permitted.
func (s ExchangeStatus) Terminal() bool {
	switch s {
	case ExchangeRejected, ExchangeCancelled, ExchangeCompleted:
		return true
	}
	return false
}

// CanTransition encodes the request state machine:
// pending -> accepted -> completed, pending -> rejected,
// pending|accepted -> cancelled, pending -> completed (immediate accept).
func (s ExchangeStatus) CanTransition(to ExchangeStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case ExchangePending:
		return to == ExchangeAccepted || to == ExchangeRejected ||
			to == ExchangeCancelled || to == ExchangeCompleted
	case ExchangeAccepted:
		return to == ExchangeCancelled || to == ExchangeCompleted
	}
	return false
}

// ExchangeRequest is a proposal to swap FromTicket (owned by FromUser)
// against ToTicket (owned by ToUser). SelectedFromTicket is set when the
// recipient accepts while substituting a different one of their own active
// tickets for the one originally targeted.
type ExchangeRequest struct {
	ID                 string         `json:"id"`
	FromTicket         string         `json:"from_ticket"`
	ToTicket           string         `json:"to_ticket"`
	FromUser           string         `json:"from_user"`
	ToUser             string         `json:"to_user"`
	SelectedFromTicket string         `json:"selected_from_ticket,omitempty"`
	Status             ExchangeStatus `json:"status"`
	Message            string         `json:"message,omitempty"`
	FromConfirmed      bool           `json:"from_confirmed"`
	ToConfirmed        bool           `json:"to_confirmed"`
	Created            time.Time      `json:"created"`
	Updated            time.Time      `json:"updated"`
}

// EffectiveToTicket is the recipient-side ticket that finalizes on
// completion: the substituted one when a selection was recorded, otherwise
// the originally targeted ticket.
func (r *ExchangeRequest) EffectiveToTicket() string {
	if r.SelectedFromTicket != "" {
		return r.SelectedFromTicket
	}
	return r.ToTicket
}

// IsParty reports whether userID is one of the two request parties.
func (r *ExchangeRequest) IsParty(userID string) bool {
	return userID != "" && (userID == r.FromUser || userID == r.ToUser)
}

// ExchangeRequestFromRecord maps an exchange_requests collection record
// into the domain struct.
func ExchangeRequestFromRecord(r *core.Record) *ExchangeRequest {
	return &ExchangeRequest{
		ID:                 r.Id,
		FromTicket:         r.GetString("from_ticket"),
		ToTicket:           r.GetString("to_ticket"),
		FromUser:           r.GetString("from_user"),
		ToUser:             r.GetString("to_user"),
		SelectedFromTicket: r.GetString("selected_from_ticket"),
		Status:             ExchangeStatus(r.GetString("status")),
		Message:            r.GetString("message"),
		FromConfirmed:      r.GetBool("from_confirmed"),
		ToConfirmed:        r.GetBool("to_confirmed"),
		Created:            r.GetDateTime("created").Time(),
		Updated:            r.GetDateTime("updated").Time(),
	}
}
