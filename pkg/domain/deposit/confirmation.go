// Package deposit models the lifecycle of an external payment confirmation.
package deposit

import (
	"fmt"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State of a payment reference. Applied and Rejected are terminal.
type State string

const (
	StatePending  State = "pending"
	StateApplied  State = "applied"
	StateRejected State = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == StateApplied || s == StateRejected }

// Status is what the payment collaborator sees in the response.
type Status string

const (
	StatusApplied        Status = "Applied"
	StatusRejected       Status = "Rejected"
	StatusAlreadyApplied Status = "AlreadyApplied"
)

// Confirmation records one external payment reference and its outcome.
type Confirmation struct {
	ID                uuid.UUID
	PaymentReference  string
	MainAccountID     uuid.UUID
	DependentID       uuid.UUID
	FunderID          uuid.UUID
	Amount            decimal.Decimal
	Currency          money.Code
	State             State
	Reason            string
	LedgerEntryID     *uuid.UUID
	NewBalance        *decimal.Decimal
	DistributionError string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPending starts a confirmation for a payment reference.
func NewPending(
	paymentReference string,
	mainAccountID uuid.UUID,
	dependentID uuid.UUID,
	funderID uuid.UUID,
	amount decimal.Decimal,
	currency money.Code,
) (*Confirmation, error) {
	if paymentReference == "" {
		return nil, domain.ErrMissingReference
	}
	if err := money.ValidateAmount(amount, currency); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Confirmation{
		ID:               uuid.New(),
		PaymentReference: paymentReference,
		MainAccountID:    mainAccountID,
		DependentID:      dependentID,
		FunderID:         funderID,
		Amount:           amount,
		Currency:         currency,
		State:            StatePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// MarkApplied moves Pending to Applied.
func (c *Confirmation) MarkApplied(entryID uuid.UUID, newBalance decimal.Decimal) error {
	if c.State != StatePending {
		return fmt.Errorf("%s -> %s: %w", c.State, StateApplied, domain.ErrInvalidTransition)
	}
	c.State = StateApplied
	c.LedgerEntryID = &entryID
	c.NewBalance = &newBalance
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRejected moves Pending to Rejected.
func (c *Confirmation) MarkRejected(reason string) error {
	if c.State != StatePending {
		return fmt.Errorf("%s -> %s: %w", c.State, StateRejected, domain.ErrInvalidTransition)
	}
	c.State = StateRejected
	c.Reason = reason
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// DistributionOutcome summarizes the split that followed a deposit.
type DistributionOutcome struct {
	Distributed decimal.Decimal
	Remainder   decimal.Decimal
	EntryCount  int
	Error       string
}

// Result is returned by the confirmation gateway.
type Result struct {
	Status        Status
	Reference     string
	LedgerEntryID *uuid.UUID
	NewBalance    *decimal.Decimal
	Reason        string
	Distribution  *DistributionOutcome
}

// SameDeposit reports whether a repeat notification describes this
// confirmation's deposit.
func (c *Confirmation) SameDeposit(mainAccountID, funderID uuid.UUID, amount decimal.Decimal) bool {
	return c.MainAccountID == mainAccountID && c.FunderID == funderID && c.Amount.Equal(amount)
}

// Replay turns a stored confirmation into the response for a repeat call.
func (c *Confirmation) Replay() Result {
	r := Result{
		Reference:     c.PaymentReference,
		LedgerEntryID: c.LedgerEntryID,
		NewBalance:    c.NewBalance,
		Reason:        c.Reason,
	}
	switch c.State {
	case StateApplied:
		r.Status = StatusAlreadyApplied
	case StateRejected:
		r.Status = StatusRejected
	}
	return r
}
