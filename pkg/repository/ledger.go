package repository

import (
	"context"
	"time"

	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/google/uuid"
)

// LedgerFilter narrows ledger queries. Zero values mean "any".
type LedgerFilter struct {
	AccountID       uuid.UUID
	DependentID     uuid.UUID
	From            *time.Time
	To              *time.Time
	Category        string
	Type            ledger.EntryType
	ReferencePrefix string
	// Ascending orders oldest first; the default is newest first.
	Ascending bool
	Limit     int
	Offset    int
}

// LedgerRepository is append-only: there is no update or delete.
type LedgerRepository interface {
	// Append inserts entries. A reused (reference, account) pair fails with
	// domain.ErrDuplicateReference.
	Append(ctx context.Context, entries ...*ledger.Entry) error
	ExistsByReference(ctx context.Context, reference string) (bool, error)
	FindByReference(ctx context.Context, reference string) ([]*ledger.Entry, error)
	List(ctx context.Context, filter LedgerFilter) ([]*ledger.Entry, error)
	Count(ctx context.Context, filter LedgerFilter) (int64, error)
}
