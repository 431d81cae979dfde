package config

import (
	"errors"
	"log/slog"

	"github.com/amirasaad/carefund/pkg/cache"
	"github.com/amirasaad/carefund/pkg/eventbus"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/amirasaad/carefund/pkg/metrics"
	"github.com/amirasaad/carefund/pkg/repository"
)

// Deps holds all infrastructure dependencies for building the app and services.
type Deps struct {
	Uow       repository.UnitOfWork
	EventBus  eventbus.Bus
	RuleCache cache.RuleCache
	Locker    lock.Locker
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
	Config    *App

	// Closers release connections in reverse order of acquisition.
	Closers []func() error
}

// Close runs the closers, last acquired first. A nil Deps is a no-op.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.Closers) - 1; i >= 0; i-- {
		errs = append(errs, d.Closers[i]())
	}
	d.Closers = nil
	return errors.Join(errs...)
}
