package repository

import (
	"context"

	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/google/uuid"
)

// AllocationRepository stores per-dependent allocation tables.
type AllocationRepository interface {
	// RulesFor returns the dependent's table; found is false when the
	// dependent has no table of its own.
	RulesFor(ctx context.Context, dependentID uuid.UUID) (rules allocation.RuleSet, found bool, err error)
	Replace(ctx context.Context, dependentID uuid.UUID, rules allocation.RuleSet) error
}
