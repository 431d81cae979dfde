// Package authz decides whether a requester may act for a dependent.
package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
)

// Authorizer answers whether requesterID may fund or manage dependentID.
type Authorizer interface {
	IsAuthorized(ctx context.Context, requesterID, dependentID uuid.UUID) (bool, error)
}

// LinkAuthorizer grants access to the dependent's caregiver and to funders
// with an active link.
type LinkAuthorizer struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
}

func NewLinkAuthorizer(uow repository.UnitOfWork, logger *slog.Logger) *LinkAuthorizer {
	return &LinkAuthorizer{uow: uow, logger: logger.With("component", "authz")}
}

func (a *LinkAuthorizer) IsAuthorized(ctx context.Context, requesterID, dependentID uuid.UUID) (bool, error) {
	if requesterID == uuid.Nil || dependentID == uuid.Nil {
		return false, nil
	}
	accounts, err := a.uow.AccountRepository()
	if err != nil {
		return false, err
	}
	main, err := accounts.FindMainByDependent(ctx, dependentID)
	switch {
	case err == nil:
		if main.CaregiverID != nil && *main.CaregiverID == requesterID {
			return true, nil
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return false, err
	}
	links, err := a.uow.LinkRepository()
	if err != nil {
		return false, err
	}
	return links.IsLinked(ctx, requesterID, dependentID)
}

// Require returns ErrAuthorization unless the requester is authorized.
func (a *LinkAuthorizer) Require(ctx context.Context, requesterID, dependentID uuid.UUID) error {
	ok, err := a.IsAuthorized(ctx, requesterID, dependentID)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Warn("authorization denied", "requesterID", requesterID, "dependentID", dependentID)
		return domain.ErrAuthorization
	}
	return nil
}

// Link records that funderID may fund dependentID.
func (a *LinkAuthorizer) Link(ctx context.Context, funderID, dependentID uuid.UUID) error {
	if funderID == uuid.Nil || dependentID == uuid.Nil {
		return domain.ErrValidation
	}
	err := a.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		accounts, err := tx.AccountRepository()
		if err != nil {
			return err
		}
		if _, err := accounts.FindMainByDependent(ctx, dependentID); err != nil {
			return err
		}
		links, err := tx.LinkRepository()
		if err != nil {
			return err
		}
		return links.Link(ctx, funderID, dependentID)
	})
	if err != nil {
		a.logger.Error("Link failed", "funderID", funderID, "dependentID", dependentID, "error", err)
		return err
	}
	a.logger.Info("Link completed", "funderID", funderID, "dependentID", dependentID)
	return nil
}

func (a *LinkAuthorizer) Unlink(ctx context.Context, funderID, dependentID uuid.UUID) error {
	return a.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		links, err := tx.LinkRepository()
		if err != nil {
			return err
		}
		return links.Unlink(ctx, funderID, dependentID)
	})
}

var _ Authorizer = (*LinkAuthorizer)(nil)
