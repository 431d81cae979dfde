package repository

import (
	"context"

	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepository persists accounts. UpdateBalance is only called by the
// account store after it has locked the row with GetForUpdate.
type AccountRepository interface {
	Create(ctx context.Context, accounts ...*account.Account) error
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	// GetForUpdate reads the account and holds a row lock until the
	// surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status account.Status) error
	FindMainByDependent(ctx context.Context, dependentID uuid.UUID) (*account.Account, error)
	ListByDependent(ctx context.Context, dependentID uuid.UUID) ([]*account.Account, error)
}
