package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"swapstadium/config"
	"swapstadium/internal/status"
	"swapstadium/models"
	"swapstadium/utils"
)

const (
	publicListKey      = "tickets:public"
	publicListStaleKey = "tickets:public:stale"
	staleListTTL       = 24 * time.Hour
)

// TicketService owns the tickets collection: CRUD, the public active
// listing (Redis-cached, with a stale-serve degrade when the store is
// unavailable), and the expiry sweep.
type TicketService struct {
	app   core.App
	redis *redis.Client
	cfg   *config.Config
}

func NewTicketService(app core.App, redisClient *redis.Client, cfg *config.Config) *TicketService {
	return &TicketService{
		app:   app,
		redis: redisClient,
		cfg:   cfg,
	}
}

type TicketInput struct {
	Category    models.TicketCategory `json:"category"`
	HomeTeam    string                `json:"home_team"`
	AwayTeam    string                `json:"away_team"`
	Competition string                `json:"competition"`
	Stadium     string                `json:"stadium"`
	MatchDate   time.Time             `json:"match_date"`
	CurrentSeat models.Seat           `json:"current_seat"`
	DesiredSeat *models.Seat          `json:"desired_seat,omitempty"`
	FaceValue   decimal.Decimal       `json:"face_value"`
	Notes       string                `json:"notes,omitempty"`
	ExpiresAt   time.Time             `json:"expires_at"`
}

func (s *TicketService) Create(ctx context.Context, callerID string, in TicketInput) (*models.Ticket, error) {
	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}
	if !in.Category.Valid() {
		return nil, fmt.Errorf("unknown ticket category %q: %w", in.Category, status.ErrInvalidTarget)
	}
	if in.HomeTeam == "" || in.AwayTeam == "" {
		return nil, fmt.Errorf("match teams are required: %w", status.ErrInvalidTarget)
	}

	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, notFoundOr(err, "tickets collection")
	}

	refCode, err := utils.GenerateCode(4)
	if err != nil {
		return nil, fmt.Errorf("ref code: %w: %v", status.ErrBackendUnavailable, err)
	}

	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = in.MatchDate
	}

	record := core.NewRecord(collection)
	record.Set("owner", callerID)
	record.Set("ref_code", refCode)
	record.Set("category", string(in.Category))
	record.Set("status", string(models.TicketStatusActive))
	record.Set("home_team", in.HomeTeam)
	record.Set("away_team", in.AwayTeam)
	record.Set("competition", in.Competition)
	record.Set("stadium", in.Stadium)
	record.Set("match_date", in.MatchDate)
	record.Set("current_section", in.CurrentSeat.Section)
	record.Set("current_row", in.CurrentSeat.Row)
	record.Set("current_number", in.CurrentSeat.Number)
	if in.DesiredSeat != nil {
		record.Set("desired_section", in.DesiredSeat.Section)
		record.Set("desired_row", in.DesiredSeat.Row)
		record.Set("desired_number", in.DesiredSeat.Number)
	}
	record.Set("face_value", in.FaceValue.InexactFloat64())
	record.Set("notes", in.Notes)
	record.Set("expires_at", expiresAt)

	if err := s.app.Save(record); err != nil {
		return nil, saveErr(err, "create ticket")
	}

	s.invalidatePublicList(ctx)

	return models.TicketFromRecord(record), nil
}

func (s *TicketService) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", id)
	if err != nil {
		return nil, notFoundOr(err, "ticket "+id)
	}
	return models.TicketFromRecord(record), nil
}

func (s *TicketService) ListByOwner(ctx context.Context, callerID string) ([]*models.Ticket, error) {
	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}

	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"owner = {:owner}",
		"-created",
		0,
		0,
		dbx.Params{"owner": callerID},
	)
	if err != nil {
		return nil, fmt.Errorf("list own tickets: %w: %v", status.ErrBackendUnavailable, err)
	}

	return ticketsFromRecords(records), nil
}

// ListPublicActive returns active exchange-ready tickets of other users,
// newest first. Results are cached briefly in Redis; when the store errors
// out a stale cached copy is served instead (degraded read rather than
// hard failure).
func (s *TicketService) ListPublicActive(ctx context.Context, callerID string) ([]*models.Ticket, error) {
	if cached := s.cachedPublicList(ctx, publicListKey); cached != nil {
		return excludeOwner(cached, callerID), nil
	}

	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"status = {:status}",
		"-created",
		s.cfg.PublicListLimit,
		0,
		dbx.Params{"status": string(models.TicketStatusActive)},
	)
	if err != nil {
		if stale := s.cachedPublicList(ctx, publicListStaleKey); stale != nil {
			s.app.Logger().Warn("serving stale public ticket list", "error", err)
			return excludeOwner(stale, callerID), nil
		}
		return nil, fmt.Errorf("list public tickets: %w: %v", status.ErrBackendUnavailable, err)
	}

	tickets := ticketsFromRecords(records)
	s.storePublicList(ctx, tickets)

	return excludeOwner(tickets, callerID), nil
}

func (s *TicketService) UpdateStatus(ctx context.Context, callerID, id string, next models.TicketStatus) (*models.Ticket, error) {
	if callerID == "" {
		return nil, status.ErrNotAuthenticated
	}
	if !next.Valid() {
		return nil, fmt.Errorf("unknown ticket status %q: %w", next, status.ErrInvalidState)
	}

	var updated *models.Ticket
	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("tickets", id)
		if err != nil {
			return notFoundOr(err, "ticket "+id)
		}
		if record.GetString("owner") != callerID {
			return fmt.Errorf("ticket %s: %w", id, status.ErrNotOwner)
		}

		record.Set("status", string(next))
		if err := txApp.Save(record); err != nil {
			return saveErr(err, "update ticket status")
		}

		updated = models.TicketFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePublicList(ctx)
	return updated, nil
}

func (s *TicketService) Delete(ctx context.Context, callerID, id string) error {
	if callerID == "" {
		return status.ErrNotAuthenticated
	}

	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := txApp.FindRecordById("tickets", id)
		if err != nil {
			return notFoundOr(err, "ticket "+id)
		}
		if record.GetString("owner") != callerID {
			return fmt.Errorf("ticket %s: %w", id, status.ErrNotOwner)
		}
		if record.GetString("status") != string(models.TicketStatusActive) {
			return fmt.Errorf("only active tickets can be deleted: %w", status.ErrInvalidState)
		}

		if err := txApp.Delete(record); err != nil {
			return fmt.Errorf("delete ticket: %w: %v", status.ErrBackendUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidatePublicList(ctx)
	return nil
}

// ExpireOverdue marks active tickets whose expires_at has passed as
// expired and returns how many were flipped.
func (s *TicketService) ExpireOverdue(ctx context.Context) (int, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"status = {:status} && expires_at != '' && expires_at <= {:now}",
		"",
		500,
		0,
		dbx.Params{
			"status": string(models.TicketStatusActive),
			"now":    types.NowDateTime().String(),
		},
	)
	if err != nil {
		return 0, fmt.Errorf("expiry sweep: %w: %v", status.ErrBackendUnavailable, err)
	}

	expired := 0
	for _, record := range records {
		record.Set("status", string(models.TicketStatusExpired))
		if err := s.app.Save(record); err != nil {
			s.app.Logger().Warn("expiry sweep: save failed", "ticket", record.Id, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.invalidatePublicList(ctx)
	}
	return expired, nil
}

// RunExpirySweep loops ExpireOverdue until ctx is cancelled.
func (s *TicketService) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ExpireOverdue(ctx); err != nil {
				s.app.Logger().Warn("expiry sweep failed", "error", err)
			} else if n > 0 {
				s.app.Logger().Info("expired overdue tickets", "count", n)
			}
		}
	}
}

func (s *TicketService) cachedPublicList(ctx context.Context, key string) []*models.Ticket {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var tickets []*models.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil
	}
	return tickets
}

func (s *TicketService) storePublicList(ctx context.Context, tickets []*models.Ticket) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(tickets)
	if err != nil {
		return
	}
	s.redis.Set(ctx, publicListKey, data, s.cfg.ListingCacheTTL)
	s.redis.Set(ctx, publicListStaleKey, data, staleListTTL)
}

func (s *TicketService) invalidatePublicList(ctx context.Context) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, publicListKey)
}

func ticketsFromRecords(records []*core.Record) []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, models.TicketFromRecord(r))
	}
	return tickets
}

func excludeOwner(tickets []*models.Ticket, ownerID string) []*models.Ticket {
	if ownerID == "" {
		return tickets
	}
	out := make([]*models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Owner != ownerID {
			out = append(out, t)
		}
	}
	return out
}
