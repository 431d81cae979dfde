// Package allocation resolves the active allocation table for a dependent.
package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/pkg/cache"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "allocation:"

// Provider looks up a dependent's own table, falling back to the configured
// default. Lookups are cached and concurrent misses for one dependent share a
// single storage read.
type Provider struct {
	uow      repository.UnitOfWork
	cache    cache.RuleCache
	defaults allocation.RuleSet
	ttl      time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

// NewProvider creates a Provider. A nil cache disables caching.
func NewProvider(
	uow repository.UnitOfWork,
	ruleCache cache.RuleCache,
	defaults allocation.RuleSet,
	ttl time.Duration,
	logger *slog.Logger,
) (*Provider, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default allocation: %w", err)
	}
	return &Provider{
		uow:      uow,
		cache:    ruleCache,
		defaults: defaults.Sorted(),
		ttl:      ttl,
		logger:   logger.With("component", "allocation-provider"),
	}, nil
}

// Defaults returns the table used for dependents without their own.
func (p *Provider) Defaults() allocation.RuleSet {
	return p.defaults.Sorted()
}

// Rules returns the active table. An empty table is valid and means nothing
// is distributed. A non-nil tx routes the storage read through that unit of
// work, which callers already inside a unit must do.
func (p *Provider) Rules(
	ctx context.Context,
	tx repository.UnitOfWork,
	dependentID uuid.UUID,
) (allocation.RuleSet, error) {
	key := keyPrefix + dependentID.String()
	if p.cache != nil {
		rules, found, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn("rule cache read failed, using storage", "dependentID", dependentID, "error", err)
		} else if found {
			return rules, nil
		}
	}

	if tx != nil {
		rules, _, err := load(ctx, tx, dependentID, p.defaults)
		if err != nil {
			return nil, err
		}
		p.remember(ctx, key, dependentID, rules)
		return rules.Sorted(), nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		rules, _, err := load(ctx, p.uow, dependentID, p.defaults)
		if err != nil {
			return nil, err
		}
		p.remember(ctx, key, dependentID, rules)
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(allocation.RuleSet).Sorted(), nil
}

func (p *Provider) remember(ctx context.Context, key string, dependentID uuid.UUID, rules allocation.RuleSet) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key, rules, p.ttl); err != nil {
		p.logger.Warn("rule cache write failed", "dependentID", dependentID, "error", err)
	}
}

// Lookup is Rules without the cache, also reporting whether the dependent has
// a table of its own.
func (p *Provider) Lookup(ctx context.Context, dependentID uuid.UUID) (allocation.RuleSet, bool, error) {
	return load(ctx, p.uow, dependentID, p.defaults)
}

func load(
	ctx context.Context,
	uow repository.UnitOfWork,
	dependentID uuid.UUID,
	defaults allocation.RuleSet,
) (allocation.RuleSet, bool, error) {
	repo, err := uow.AllocationRepository()
	if err != nil {
		return nil, false, err
	}
	rules, found, err := repo.RulesFor(ctx, dependentID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return defaults.Sorted(), false, nil
	}
	return rules, true, nil
}

// SetRules validates and stores a dependent's own table. An empty table
// removes it, restoring the default.
func (p *Provider) SetRules(ctx context.Context, dependentID uuid.UUID, rules allocation.RuleSet) error {
	logger := p.logger.With("dependentID", dependentID, "rules", rules.String())
	if err := rules.Validate(); err != nil {
		return err
	}
	err := p.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.AllocationRepository()
		if err != nil {
			return err
		}
		return repo.Replace(ctx, dependentID, rules)
	})
	if err != nil {
		logger.Error("SetRules failed", "error", err)
		return err
	}
	if p.cache != nil {
		if err := p.cache.Delete(ctx, keyPrefix+dependentID.String()); err != nil {
			logger.Warn("rule cache invalidation failed", "error", err)
		}
	}
	logger.Info("SetRules completed")
	return nil
}
