package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// RetentionPeriod is how long recorded events are kept before purging.
const RetentionPeriod = 30 * 24 * time.Hour

var ErrMissingEventID = errors.New("event has no identity")

// Store persists applied event identities. Record must rely on a unique
// (provider, event id) constraint and report created=false when the row exists.
type Store interface {
	WebhookEventExists(ctx context.Context, provider, eventID string) (bool, error)
	RecordWebhookEvent(ctx context.Context, ev *Event, outcome string) (bool, error)
	PurgeWebhookEvents(ctx context.Context, before time.Time) (int64, error)
}

// Processor applies an event to local state and returns a short outcome.
// It must be idempotent: a crash after processing and before recording
// leads to the same event being processed again.
type Processor func(ctx context.Context, ev *Event) (string, error)

// Result is returned to the webhook caller.
type Result struct {
	Duplicate bool
	Outcome   string
}

// Guard applies each (provider, event id) at most once.
type Guard struct {
	store Store
	now   func() time.Time
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store, now: time.Now}
}

// Handle skips known events, otherwise processes and then records. If
// processing fails nothing is recorded and the error is returned so the
// provider retries the delivery.
func (g *Guard) Handle(ctx context.Context, ev *Event, process Processor) (Result, error) {
	if ev == nil || ev.ID == "" {
		return Result{}, ErrMissingEventID
	}

	seen, err := g.store.WebhookEventExists(ctx, ev.Provider, ev.ID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup webhook event: %w", err)
	}
	if seen {
		log.Infof("[Webhook] Duplicate %s event %s ignored", ev.Provider, ev.ID)
		return Result{Duplicate: true}, nil
	}

	outcome, err := process(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	created, err := g.store.RecordWebhookEvent(ctx, ev, outcome)
	if err != nil {
		return Result{}, fmt.Errorf("record webhook event: %w", err)
	}
	if !created {
		// A concurrent delivery of the same event recorded first.
		log.Infof("[Webhook] %s event %s recorded concurrently", ev.Provider, ev.ID)
		return Result{Duplicate: true, Outcome: outcome}, nil
	}
	return Result{Outcome: outcome}, nil
}

// Purge deletes recorded events older than the retention period.
func (g *Guard) Purge(ctx context.Context) (int64, error) {
	return g.store.PurgeWebhookEvents(ctx, g.now().Add(-RetentionPeriod))
}
