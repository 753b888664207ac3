package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"swapstadium/utils"
)

// Notifier pushes exchange lifecycle events to the per-user PubNub channel
// the mobile client listens on. Publishing is best effort: a dead
// notification service must never fail the engine operation that triggered
// it, so failures are logged and a circuit breaker keeps a broken PubNub
// from slowing every mutation down.
type Notifier struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
	logger  *slog.Logger
}

func NewNotifier(pn *pubnub.PubNub, logger *slog.Logger) *Notifier {
	return &Notifier{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
		logger:  logger,
	}
}

// NotifyUser publishes payload to the user's channel.
func (n *Notifier) NotifyUser(userID string, payload map[string]any) {
	if n == nil || n.pubnub == nil || userID == "" {
		return
	}

	channel := fmt.Sprintf("user-%s", userID)
	err := n.breaker.Do(func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(payload).
			Execute()
		return err
	})
	if err != nil && n.logger != nil {
		n.logger.Warn("push notification dropped", "channel", channel, "error", err)
	}
}

// NotifyRequestEvent fans an exchange request event out to both parties.
func (n *Notifier) NotifyRequestEvent(event, requestID string, userIDs ...string) {
	for _, id := range userIDs {
		n.NotifyUser(id, map[string]any{
			"type":       "exchange_request",
			"event":      event,
			"request_id": requestID,
		})
	}
}
