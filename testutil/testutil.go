// Package testutil bootstraps a disposable PocketBase app with the
// swapstadium collections for service and handler tests. The collection
// definitions mirror the migrations; tests create them directly because
// the test app does not run the registered app migrations.
package testutil

import (
	"fmt"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/require"
)

func NewApp(t *testing.T) *tests.TestApp {
	t.Helper()

	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	createCollections(t, app)

	return app
}

func createCollections(t *testing.T, app core.App) {
	t.Helper()

	users, err := app.FindCollectionByNameOrId("users")
	require.NoError(t, err)

	tickets := core.NewBaseCollection("tickets")
	tickets.Fields.Add(
		&core.RelationField{Name: "owner", Required: true, CollectionId: users.Id, MaxSelect: 1},
		&core.TextField{Name: "ref_code", Max: 16},
		&core.SelectField{Name: "category", Required: true, MaxSelect: 1, Values: []string{"exchange", "giveaway"}},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"active", "completed", "cancelled", "expired"}},
		&core.TextField{Name: "home_team", Required: true},
		&core.TextField{Name: "away_team", Required: true},
		&core.TextField{Name: "competition"},
		&core.TextField{Name: "stadium"},
		&core.DateField{Name: "match_date"},
		&core.TextField{Name: "current_section"},
		&core.TextField{Name: "current_row"},
		&core.NumberField{Name: "current_number", OnlyInt: true},
		&core.TextField{Name: "desired_section"},
		&core.TextField{Name: "desired_row"},
		&core.NumberField{Name: "desired_number", OnlyInt: true},
		&core.NumberField{Name: "face_value"},
		&core.TextField{Name: "notes", Max: 500},
		&core.DateField{Name: "expires_at"},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	tickets.AddIndex("idx_test_tickets_status_created", false, "status, created", "")
	tickets.AddIndex("idx_test_tickets_owner_created", false, "owner, created", "")
	require.NoError(t, app.Save(tickets))

	requests := core.NewBaseCollection("exchange_requests")
	requests.Fields.Add(
		&core.RelationField{Name: "from_ticket", Required: true, CollectionId: tickets.Id, MaxSelect: 1},
		&core.RelationField{Name: "to_ticket", Required: true, CollectionId: tickets.Id, MaxSelect: 1},
		&core.RelationField{Name: "from_user", Required: true, CollectionId: users.Id, MaxSelect: 1},
		&core.RelationField{Name: "to_user", Required: true, CollectionId: users.Id, MaxSelect: 1},
		&core.RelationField{Name: "selected_from_ticket", CollectionId: tickets.Id, MaxSelect: 1},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"pending", "accepted", "rejected", "cancelled", "completed"}},
		&core.TextField{Name: "message", Max: 500},
		&core.BoolField{Name: "from_confirmed"},
		&core.BoolField{Name: "to_confirmed"},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	requests.AddIndex("idx_test_exreq_pending_pair", true, "from_ticket, to_ticket", "status = 'pending'")
	require.NoError(t, app.Save(requests))
}

var userSeq int

// NewUser creates a verified user record and returns it.
func NewUser(t *testing.T, app core.App) *core.Record {
	t.Helper()

	users, err := app.FindCollectionByNameOrId("users")
	require.NoError(t, err)

	userSeq++
	user := core.NewRecord(users)
	user.Set("email", fmt.Sprintf("user%d@swapstadium.test", userSeq))
	user.Set("password", "0123456789")
	user.Set("verified", true)
	require.NoError(t, app.Save(user))

	return user
}

// NewTicket creates a ticket record owned by ownerID.
func NewTicket(t *testing.T, app core.App, ownerID, category, status string) *core.Record {
	t.Helper()

	tickets, err := app.FindCollectionByNameOrId("tickets")
	require.NoError(t, err)

	ticket := core.NewRecord(tickets)
	ticket.Set("owner", ownerID)
	ticket.Set("category", category)
	ticket.Set("status", status)
	ticket.Set("home_team", "Home FC")
	ticket.Set("away_team", "Away FC")
	ticket.Set("competition", "League")
	ticket.Set("stadium", "Central Stadium")
	ticket.Set("current_section", "A")
	ticket.Set("current_row", "12")
	ticket.Set("current_number", 7)
	ticket.Set("face_value", 45.0)
	require.NoError(t, app.Save(ticket))

	return ticket
}
