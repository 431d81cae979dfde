package repository

import (
	"context"

	"github.com/amirasaad/carefund/pkg/domain/deposit"
)

// DepositRepository stores one confirmation per payment reference.
type DepositRepository interface {
	// Create claims the payment reference. A second claim fails with
	// domain.ErrDuplicateReference.
	Create(ctx context.Context, c *deposit.Confirmation) error
	GetByReference(ctx context.Context, paymentReference string) (*deposit.Confirmation, error)
	Update(ctx context.Context, c *deposit.Confirmation) error
	// RecordRejection keeps a Rejected confirmation apart from the claims,
	// once per reference and funder, so it never blocks a later claim. A
	// repeat fails with domain.ErrDuplicateReference.
	RecordRejection(ctx context.Context, c *deposit.Confirmation) error
	// Rejections lists the rejected attempts recorded for a reference.
	Rejections(ctx context.Context, paymentReference string) ([]*deposit.Confirmation, error)
}
