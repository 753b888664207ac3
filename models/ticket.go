package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type TicketCategory string

const (
	TicketCategoryExchange TicketCategory = "exchange"
	TicketCategoryGiveaway TicketCategory = "giveaway"
)

func (c TicketCategory) Valid() bool {
	return c == TicketCategoryExchange || c == TicketCategoryGiveaway
}

type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "active"
	TicketStatusCompleted TicketStatus = "completed"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusExpired   TicketStatus = "expired"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusActive, TicketStatusCompleted, TicketStatusCancelled, TicketStatusExpired:
		return true
	}
	return false
}

// Seat identifies a single place in the stadium.
type Seat struct {
	Section string `json:"section"`
	Row     string `json:"row"`
	Number  int    `json:"number"`
}

func (s Seat) IsZero() bool {
	return s.Section == "" && s.Row == "" && s.Number == 0
}

type Ticket struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	RefCode     string          `json:"ref_code"`
	Category    TicketCategory  `json:"category"`
	Status      TicketStatus    `json:"status"`
	HomeTeam    string          `json:"home_team"`
	AwayTeam    string          `json:"away_team"`
	Competition string          `json:"competition"`
	Stadium     string          `json:"stadium"`
	MatchDate   time.Time       `json:"match_date"`
	CurrentSeat Seat            `json:"current_seat"`
	DesiredSeat *Seat           `json:"desired_seat,omitempty"`
	FaceValue   decimal.Decimal `json:"face_value"`
	Notes       string          `json:"notes,omitempty"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

func (t *Ticket) IsActive() bool {
	return t.Status == TicketStatusActive
}

// TicketFromRecord maps a tickets collection record into the domain struct.
func TicketFromRecord(r *core.Record) *Ticket {
	t := &Ticket{
		ID:          r.Id,
		Owner:       r.GetString("owner"),
		RefCode:     r.GetString("ref_code"),
		Category:    TicketCategory(r.GetString("category")),
		Status:      TicketStatus(r.GetString("status")),
		HomeTeam:    r.GetString("home_team"),
		AwayTeam:    r.GetString("away_team"),
		Competition: r.GetString("competition"),
		Stadium:     r.GetString("stadium"),
		MatchDate:   r.GetDateTime("match_date").Time(),
		CurrentSeat: Seat{
			Section: r.GetString("current_section"),
			Row:     r.GetString("current_row"),
			Number:  r.GetInt("current_number"),
		},
		FaceValue: decimal.NewFromFloat(r.GetFloat("face_value")),
		Notes:     r.GetString("notes"),
		ExpiresAt: r.GetDateTime("expires_at").Time(),
		Created:   r.GetDateTime("created").Time(),
		Updated:   r.GetDateTime("updated").Time(),
	}

	desired := Seat{
		Section: r.GetString("desired_section"),
		Row:     r.GetString("desired_row"),
		Number:  r.GetInt("desired_number"),
	}
	if !desired.IsZero() {
		t.DesiredSeat = &desired
	}

	return t
}
