package repository

import (
	"context"

	"github.com/google/uuid"
)

// LinkRepository stores which funders may act on which dependents.
type LinkRepository interface {
	IsLinked(ctx context.Context, funderID, dependentID uuid.UUID) (bool, error)
	Link(ctx context.Context, funderID, dependentID uuid.UUID) error
	Unlink(ctx context.Context, funderID, dependentID uuid.UUID) error
}
