package services

import (
	"context"
	"testing"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapstadium/internal/status"
	"swapstadium/models"
	"swapstadium/testutil"
)

type exchangeFixture struct {
	app     *tests.TestApp
	svc     *ExchangeService
	userA   *core.Record
	userB   *core.Record
	ticketA *core.Record // owned by userA, active, exchange
	ticketB *core.Record // owned by userB, active, exchange
}

func newExchangeFixture(t *testing.T) *exchangeFixture {
	t.Helper()

	app := testutil.NewApp(t)

	userA := testutil.NewUser(t, app)
	userB := testutil.NewUser(t, app)

	return &exchangeFixture{
		app:     app,
		svc:     NewExchangeService(app, nil),
		userA:   userA,
		userB:   userB,
		ticketA: testutil.NewTicket(t, app, userA.Id, "exchange", "active"),
		ticketB: testutil.NewTicket(t, app, userB.Id, "exchange", "active"),
	}
}

func ticketStatus(t *testing.T, app core.App, id string) string {
	t.Helper()
	record, err := app.FindRecordById("tickets", id)
	require.NoError(t, err)
	return record.GetString("status")
}

func requestStatus(t *testing.T, app core.App, id string) string {
	t.Helper()
	record, err := app.FindRecordById("exchange_requests", id)
	require.NoError(t, err)
	return record.GetString("status")
}

func TestCreateRequest_Success(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "row swap?")

	require.NoError(t, err)
	assert.Equal(t, models.ExchangePending, req.Status)
	assert.Equal(t, f.userA.Id, req.FromUser)
	assert.Equal(t, f.userB.Id, req.ToUser)
	assert.Equal(t, f.ticketA.Id, req.FromTicket)
	assert.Equal(t, f.ticketB.Id, req.ToTicket)
	assert.Equal(t, "row swap?", req.Message)
	assert.False(t, req.FromConfirmed)
	assert.False(t, req.ToConfirmed)
}

func TestCreateRequest_NotAuthenticated(t *testing.T) {
	f := newExchangeFixture(t)

	_, err := f.svc.CreateRequest(context.Background(), "", f.ticketA.Id, f.ticketB.Id, "")

	assert.ErrorIs(t, err, status.ErrNotAuthenticated)
}

func TestCreateRequest_SameTicket(t *testing.T) {
	f := newExchangeFixture(t)

	_, err := f.svc.CreateRequest(context.Background(), f.userA.Id, f.ticketA.Id, f.ticketA.Id, "")

	assert.ErrorIs(t, err, status.ErrInvalidTarget)
}

func TestCreateRequest_NotOwnerOfSource(t *testing.T) {
	f := newExchangeFixture(t)
	userC := testutil.NewUser(t, f.app)

	_, err := f.svc.CreateRequest(context.Background(), userC.Id, f.ticketA.Id, f.ticketB.Id, "")

	assert.ErrorIs(t, err, status.ErrNotOwner)
}

func TestCreateRequest_OwnTarget(t *testing.T) {
	f := newExchangeFixture(t)
	otherOwn := testutil.NewTicket(t, f.app, f.userA.Id, "exchange", "active")

	_, err := f.svc.CreateRequest(context.Background(), f.userA.Id, f.ticketA.Id, otherOwn.Id, "")

	assert.ErrorIs(t, err, status.ErrInvalidTarget)
}

func TestCreateRequest_TicketNotFound(t *testing.T) {
	f := newExchangeFixture(t)

	_, err := f.svc.CreateRequest(context.Background(), f.userA.Id, "missing123", f.ticketB.Id, "")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.svc.CreateRequest(context.Background(), f.userA.Id, f.ticketA.Id, "missing123", "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCreateRequest_TicketsNotActive(t *testing.T) {
	f := newExchangeFixture(t)
	expired := testutil.NewTicket(t, f.app, f.userB.Id, "exchange", "expired")

	_, err := f.svc.CreateRequest(context.Background(), f.userA.Id, f.ticketA.Id, expired.Id, "")

	assert.ErrorIs(t, err, status.ErrTicketsNotActive)
}

func TestCreateRequest_GiveawayTargetRejected(t *testing.T) {
	f := newExchangeFixture(t)
	giveaway := testutil.NewTicket(t, f.app, f.userB.Id, "giveaway", "active")

	_, err := f.svc.CreateRequest(context.Background(), f.userA.Id, f.ticketA.Id, giveaway.Id, "")

	assert.ErrorIs(t, err, status.ErrInvalidTarget)
}

func TestCreateRequest_DuplicatePending(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "again")
	assert.ErrorIs(t, err, status.ErrDuplicateRequest)

	// exactly one pending request exists for the pair
	records, err := f.app.FindRecordsByFilter(
		"exchange_requests", "status = 'pending'", "", 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCreateRequest_AllowedAgainAfterReject(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, f.userB.Id, first.ID)
	require.NoError(t, err)

	// the pending-pair uniqueness only covers live requests
	_, err = f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "second try")
	assert.NoError(t, err)
}

func TestAccept_ByNonRecipient(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.userA.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrNotAuthorized)

	// nothing moved
	assert.Equal(t, "pending", requestStatus(t, f.app, req.ID))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestAccept_FinalizesImmediately(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	accepted, err := f.svc.Accept(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeCompleted, accepted.Status)
	assert.True(t, accepted.FromConfirmed)
	assert.True(t, accepted.ToConfirmed)
	assert.Equal(t, "completed", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "completed", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestAccept_RollsBackOnMidTransactionFailure(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	// point the request at a ticket that no longer resolves so the second
	// write inside the transaction fails
	_, err = f.app.DB().NewQuery(
		"UPDATE exchange_requests SET to_ticket = 'gone000000fake' WHERE id = {:id}").
		Bind(dbx.Params{"id": req.ID}).Execute()
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.userB.Id, req.ID)
	require.Error(t, err)

	// no partial completion observable
	assert.Equal(t, "pending", requestStatus(t, f.app, req.ID))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketA.Id))
}

func TestAccept_AfterRejectFails(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.userB.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestAcceptWithSelection_DefaultTicket(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	accepted, err := f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, f.ticketB.Id)
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeAccepted, accepted.Status)
	assert.Empty(t, accepted.SelectedFromTicket)

	// tickets finalize only after both confirmations
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestAcceptWithSelection_Substitution(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	substitute := testutil.NewTicket(t, f.app, f.userB.Id, "exchange", "active")

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	accepted, err := f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, substitute.Id)
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeAccepted, accepted.Status)
	assert.Equal(t, substitute.Id, accepted.SelectedFromTicket)
	assert.Equal(t, substitute.Id, accepted.EffectiveToTicket())
}

func TestAcceptWithSelection_SelectedNotOwned(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	userC := testutil.NewUser(t, f.app)
	foreign := testutil.NewTicket(t, f.app, userC.Id, "exchange", "active")

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, foreign.Id)
	assert.ErrorIs(t, err, status.ErrNotOwner)
	assert.Equal(t, "pending", requestStatus(t, f.app, req.ID))
}

func TestAcceptWithSelection_SelectedNotActive(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	stale := testutil.NewTicket(t, f.app, f.userB.Id, "exchange", "cancelled")

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, stale.Id)
	assert.ErrorIs(t, err, status.ErrTicketsNotActive)
}

func TestReject(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExchangeRejected, rejected.Status)
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestReject_OnlyRecipient(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, f.userA.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrNotAuthorized)
}

func TestCancel_OnlyRequester(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.userB.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrNotAuthorized)
}

func TestCancel_PendingAndAccepted(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	// cancel while pending
	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, f.userA.Id, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCancelled, cancelled.Status)

	// cancel after acceptance; tickets are still active so there is
	// nothing to roll back
	req2, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	_, err = f.svc.AcceptWithSelection(ctx, f.userB.Id, req2.ID, "")
	require.NoError(t, err)
	cancelled2, err := f.svc.Cancel(ctx, f.userA.Id, req2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCancelled, cancelled2.Status)
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestCancel_TerminalStates(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.userA.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestConfirmComplete_RequiresAcceptedState(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	_, err = f.svc.ConfirmComplete(ctx, f.userA.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestConfirmComplete_OnlyParties(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	userC := testutil.NewUser(t, f.app)

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	_, err = f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, "")
	require.NoError(t, err)

	_, err = f.svc.ConfirmComplete(ctx, userC.Id, req.ID)
	assert.ErrorIs(t, err, status.ErrNotAuthorized)
}

func TestConfirmComplete_TwoSidedFlow(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "deal?")
	require.NoError(t, err)

	accepted, err := f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, f.ticketB.Id)
	require.NoError(t, err)
	require.Equal(t, models.ExchangeAccepted, accepted.Status)

	// first confirmation keeps the request accepted
	afterA, err := f.svc.ConfirmComplete(ctx, f.userA.Id, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeAccepted, afterA.Status)
	assert.True(t, afterA.FromConfirmed)
	assert.False(t, afterA.ToConfirmed)
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketA.Id))

	// confirming twice from the same side is a benign no-op
	record, err := f.app.FindRecordById("exchange_requests", req.ID)
	require.NoError(t, err)
	updatedBefore := record.GetDateTime("updated")

	again, err := f.svc.ConfirmComplete(ctx, f.userA.Id, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeAccepted, again.Status)

	record, err = f.app.FindRecordById("exchange_requests", req.ID)
	require.NoError(t, err)
	assert.Equal(t, updatedBefore.String(), record.GetDateTime("updated").String())

	// second side completes the exchange and finalizes both tickets
	afterB, err := f.svc.ConfirmComplete(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCompleted, afterB.Status)
	assert.True(t, afterB.FromConfirmed)
	assert.True(t, afterB.ToConfirmed)
	assert.Equal(t, "completed", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "completed", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestConfirmComplete_FinalizesSubstitutedTicket(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	substitute := testutil.NewTicket(t, f.app, f.userB.Id, "exchange", "active")

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	_, err = f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, substitute.Id)
	require.NoError(t, err)

	_, err = f.svc.ConfirmComplete(ctx, f.userA.Id, req.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmComplete(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)

	// the substituted ticket finalizes; the originally targeted one
	// stays listed
	assert.Equal(t, "completed", ticketStatus(t, f.app, f.ticketA.Id))
	assert.Equal(t, "completed", ticketStatus(t, f.app, substitute.Id))
	assert.Equal(t, "active", ticketStatus(t, f.app, f.ticketB.Id))
}

func TestListIncomingOutgoing(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)

	incoming, err := f.svc.ListIncoming(ctx, f.userB.Id)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, req.ID, incoming[0].ID)

	outgoing, err := f.svc.ListOutgoing(ctx, f.userA.Id)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, req.ID, outgoing[0].ID)

	// terminal requests are not purged from either list
	_, err = f.svc.AcceptWithSelection(ctx, f.userB.Id, req.ID, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmComplete(ctx, f.userA.Id, req.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmComplete(ctx, f.userB.Id, req.ID)
	require.NoError(t, err)

	incoming, err = f.svc.ListIncoming(ctx, f.userB.Id)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, models.ExchangeCompleted, incoming[0].Status)

	outgoing, err = f.svc.ListOutgoing(ctx, f.userA.Id)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
}

func TestListOutgoing_NewestFirst(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	userC := testutil.NewUser(t, f.app)
	ticketC := testutil.NewTicket(t, f.app, userC.Id, "exchange", "active")

	first, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, f.ticketB.Id, "")
	require.NoError(t, err)
	second, err := f.svc.CreateRequest(ctx, f.userA.Id, f.ticketA.Id, ticketC.Id, "")
	require.NoError(t, err)

	outgoing, err := f.svc.ListOutgoing(ctx, f.userA.Id)
	require.NoError(t, err)
	require.Len(t, outgoing, 2)
	assert.Equal(t, second.ID, outgoing[0].ID)
	assert.Equal(t, first.ID, outgoing[1].ID)
}
