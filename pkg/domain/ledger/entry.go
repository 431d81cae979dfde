// Package ledger models the append-only record of balance-affecting events.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	Credit EntryType = "credit"
	Debit  EntryType = "debit"
)

// ParseEntryType validates an entry type string.
func ParseEntryType(s string) (EntryType, error) {
	switch t := EntryType(strings.ToLower(strings.TrimSpace(s))); t {
	case Credit, Debit:
		return t, nil
	default:
		return "", fmt.Errorf("entry type %q: %w", s, domain.ErrValidation)
	}
}

// Entry is one immutable ledger row. Amount is signed: credits are positive,
// debits negative. BalanceAfter is the account balance right after the entry.
// Sequence is assigned by storage and orders entries as they were applied.
type Entry struct {
	ID           uuid.UUID
	Sequence     int64
	AccountID    uuid.UUID
	DependentID  uuid.UUID
	Amount       decimal.Decimal
	Type         EntryType
	Reference    string
	Category     string
	Description  string
	BalanceAfter decimal.Decimal
	Metadata     Metadata
	CreatedAt    time.Time
}

// TypeFor returns the entry type matching the sign of a non-zero amount.
func TypeFor(amount decimal.Decimal) EntryType {
	if amount.IsNegative() {
		return Debit
	}
	return Credit
}

// Validate enforces sign/type agreement and a non-empty reference.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Reference) == "" {
		return domain.ErrMissingReference
	}
	if e.AccountID == uuid.Nil {
		return fmt.Errorf("entry account id is required: %w", domain.ErrValidation)
	}
	switch e.Type {
	case Credit:
		if !e.Amount.IsPositive() {
			return fmt.Errorf("credit of %s: %w", e.Amount, domain.ErrAmountTypeMismatch)
		}
	case Debit:
		if !e.Amount.IsNegative() {
			return fmt.Errorf("debit of %s: %w", e.Amount, domain.ErrAmountTypeMismatch)
		}
	default:
		return fmt.Errorf("entry type %q: %w", e.Type, domain.ErrValidation)
	}
	if e.BalanceAfter.IsNegative() {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Magnitude is the absolute value of the amount.
func (e *Entry) Magnitude() decimal.Decimal { return e.Amount.Abs() }

// NewEntry builds and validates an entry. The type is derived from the sign
// of amount.
func NewEntry(
	accountID uuid.UUID,
	dependentID uuid.UUID,
	amount decimal.Decimal,
	balanceAfter decimal.Decimal,
	reference string,
	category string,
	description string,
	meta Metadata,
) (*Entry, error) {
	e := &Entry{
		ID:           uuid.New(),
		AccountID:    accountID,
		DependentID:  dependentID,
		Amount:       amount,
		Type:         TypeFor(amount),
		Reference:    reference,
		Category:     category,
		Description:  description,
		BalanceAfter: balanceAfter,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	}
	if amount.IsZero() {
		return nil, domain.ErrInvalidAmount
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
