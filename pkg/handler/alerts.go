// Package handler holds the event bus subscribers: operator alerts and the
// activity trail, each deduplicated for at-least-once transports.
package handler

import (
	"context"
	"log/slog"

	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/eventbus"
)

// HandleDepositRejected warns about a confirmation from a funder without
// access to the dependent.
func HandleDepositRejected(logger *slog.Logger) eventbus.HandlerFunc {
	return func(_ context.Context, e events.Event) error {
		evt, ok := deref[events.DepositRejected](e)
		if !ok {
			return nil
		}
		logger.Warn("Deposit rejected",
			"payment_reference", evt.PaymentReference,
			"dependent_id", evt.DependentID,
			"funder_id", evt.FunderID,
			"reason", evt.Reason,
		)
		return nil
	}
}

// HandleDistributionFailed raises an operator alert: the deposit stays in
// the main account until the distribution is retried.
func HandleDistributionFailed(logger *slog.Logger) eventbus.HandlerFunc {
	return func(_ context.Context, e events.Event) error {
		evt, ok := deref[events.DistributionFailed](e)
		if !ok {
			return nil
		}
		logger.Error("Distribution failed; funds held in main account until retried",
			"source_reference", evt.SourceReference,
			"dependent_id", evt.DependentID,
			"account_id", evt.AccountID,
			"category", evt.Category,
			"reason", evt.Reason,
		)
		return nil
	}
}

// HandleActivity writes every ledger event to the activity trail.
func HandleActivity(logger *slog.Logger) eventbus.HandlerFunc {
	return func(_ context.Context, e events.Event) error {
		logger.Info("Ledger activity", "event_type", e.Type(), "key", ReferenceKey(e))
		return nil
	}
}

// Register subscribes the handlers to bus.
func Register(bus eventbus.Bus, logger *slog.Logger) *IdempotencyTracker {
	tracker := NewIdempotencyTracker()
	logger = logger.With("component", "event-handlers")

	bus.Register(events.EventTypeDepositRejected.String(), WithIdempotency(
		HandleDepositRejected(logger), tracker, ReferenceKey, "deposit-rejected", logger))
	bus.Register(events.EventTypeDistributionFailed.String(), WithIdempotency(
		HandleDistributionFailed(logger), tracker, ReferenceKey, "distribution-failed", logger))

	activity := WithIdempotency(HandleActivity(logger), tracker, ReferenceKey, "activity", logger)
	for eventType := range events.EventTypes {
		bus.Register(eventType, activity)
	}
	return tracker
}

// deref accepts an event emitted in process (value) or decoded from a
// transport (pointer).
func deref[T events.Event](e events.Event) (T, bool) {
	switch evt := any(e).(type) {
	case T:
		return evt, true
	case *T:
		if evt != nil {
			return *evt, true
		}
	}
	var zero T
	return zero, false
}
