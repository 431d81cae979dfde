package handler

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/eventbus"
	"golang.org/x/sync/singleflight"
)

// KeyExtractor extracts an idempotency key from an event.
type KeyExtractor func(events.Event) string

// IdempotencyTracker tracks processed events by key. Redis and Kafka deliver
// at least once, so handlers with side effects run behind one.
type IdempotencyTracker struct {
	processed sync.Map
	inflight  singleflight.Group
}

func NewIdempotencyTracker() *IdempotencyTracker {
	return &IdempotencyTracker{}
}

// Seen reports whether the handler named name succeeded for key.
func (t *IdempotencyTracker) Seen(name, key string) bool {
	return t.seen(name + "|" + key)
}

func (t *IdempotencyTracker) seen(key string) bool {
	_, ok := t.processed.Load(key)
	return ok
}

// WithIdempotency runs handler at most once per key. Concurrent deliveries
// of one key share the in-flight attempt; a failed attempt leaves the key
// unmarked so redelivery can retry it.
func WithIdempotency(
	handler eventbus.HandlerFunc,
	tracker *IdempotencyTracker,
	keyOf KeyExtractor,
	name string,
	logger *slog.Logger,
) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		key := keyOf(e)
		if key == "" {
			return handler(ctx, e)
		}
		key = name + "|" + key
		if tracker.seen(key) {
			logger.Debug("Event already handled", "handler", name, "event_type", e.Type(), "key", key)
			return nil
		}
		_, err, _ := tracker.inflight.Do(key, func() (any, error) {
			if tracker.seen(key) {
				return nil, nil
			}
			if err := handler(ctx, e); err != nil {
				return nil, err
			}
			tracker.processed.Store(key, struct{}{})
			return nil, nil
		})
		return err
	}
}

// ReferenceKey keys an event by its type and ledger reference.
func ReferenceKey(e events.Event) string {
	var ref string
	switch evt := e.(type) {
	case events.DepositApplied:
		ref = evt.PaymentReference
	case *events.DepositApplied:
		ref = evt.PaymentReference
	case events.DepositRejected:
		ref = evt.PaymentReference
	case *events.DepositRejected:
		ref = evt.PaymentReference
	case events.DistributionApplied:
		ref = evt.SourceReference
	case *events.DistributionApplied:
		ref = evt.SourceReference
	case events.DistributionFailed:
		ref = evt.SourceReference + "@" + strconv.FormatInt(evt.Timestamp.UnixNano(), 10)
	case *events.DistributionFailed:
		ref = evt.SourceReference + "@" + strconv.FormatInt(evt.Timestamp.UnixNano(), 10)
	case events.TransferCompleted:
		ref = evt.Reference
	case *events.TransferCompleted:
		ref = evt.Reference
	case events.ReversalCompleted:
		ref = evt.Reference
	case *events.ReversalCompleted:
		ref = evt.Reference
	case events.PayoutCompleted:
		ref = evt.Reference
	case *events.PayoutCompleted:
		ref = evt.Reference
	}
	if ref == "" {
		return ""
	}
	return e.Type() + ":" + ref
}
