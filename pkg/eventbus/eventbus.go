// Package eventbus defines how ledger events leave the core. Events are
// emitted only after the unit of work that produced them has committed.
package eventbus

import (
	"context"

	"github.com/amirasaad/carefund/pkg/domain/events"
)

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus defines the contract for publishing and subscribing to ledger events.
type Bus interface {
	Register(eventType string, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event) error
}
