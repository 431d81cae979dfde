package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized is returned when a requester is not authenticated
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a requester is not allowed to perform an action
	ErrForbidden = errors.New("forbidden")
)

// Ledger errors. Each one names the precondition or invariant that was violated.
var (
	// ErrAccountNotFound is returned when an account cannot be found.
	ErrAccountNotFound = fmt.Errorf("account not found: %w", ErrNotFound)
	// ErrAccountNotActive is returned when a mutation targets an inactive or frozen account.
	ErrAccountNotActive = errors.New("account is not active")
	// ErrInsufficientFunds is returned when a debit would leave a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds: balance must never be negative")
	// ErrDuplicateAccount is returned when a dependent already has a main account.
	ErrDuplicateAccount = fmt.Errorf("dependent already has a main account: %w", ErrAlreadyExists)
	// ErrDuplicateReference is returned when a ledger reference was already used for the account.
	ErrDuplicateReference = fmt.Errorf("ledger reference already used: %w", ErrAlreadyExists)
	// ErrAlreadyApplied is returned when an external event was already applied to the ledger.
	ErrAlreadyApplied = errors.New("already applied")
	// ErrPartialDistribution signals that a distribution was rolled back in full.
	ErrPartialDistribution = errors.New("distribution aborted: no partial distribution is applied")
	// ErrAuthorization is returned when a requester may not act on a dependent's accounts.
	ErrAuthorization = fmt.Errorf("requester is not authorized for dependent: %w", ErrForbidden)
	// ErrReferenceConflict is returned when a payment reference was already
	// applied for a different account, funder or amount.
	ErrReferenceConflict = fmt.Errorf("payment reference belongs to a different deposit: %w", ErrAlreadyExists)
	// ErrInvalidAmount is returned when an amount is zero, negative or too precise.
	ErrInvalidAmount = fmt.Errorf("amount must be positive: %w", ErrValidation)
	// ErrAmountTypeMismatch is returned when a ledger entry's sign disagrees with its type.
	ErrAmountTypeMismatch = fmt.Errorf("amount sign does not match entry type: %w", ErrValidation)
	// ErrMissingReference is returned when a ledger entry has no reference.
	ErrMissingReference = fmt.Errorf("reference is required: %w", ErrValidation)
	// ErrSameCategory is returned when a transfer names the same category on both sides.
	ErrSameCategory = fmt.Errorf("cannot transfer within the same category: %w", ErrValidation)
	// ErrNotSubAccount is returned when an operation restricted to sub-accounts targets a main account.
	ErrNotSubAccount = fmt.Errorf("operation is limited to category sub-accounts: %w", ErrValidation)
	// ErrDifferentDependent is returned when a transfer crosses dependents.
	ErrDifferentDependent = fmt.Errorf("accounts belong to different dependents: %w", ErrValidation)
	// ErrInvalidCategory is returned for a category outside the fixed set.
	ErrInvalidCategory = fmt.Errorf("invalid category: %w", ErrValidation)
	// ErrInvalidStatus is returned for an unknown account status.
	ErrInvalidStatus = fmt.Errorf("invalid account status: %w", ErrValidation)
	// ErrInvalidAllocation is returned when allocation percentages are out of range or sum above 100.
	ErrInvalidAllocation = fmt.Errorf("invalid allocation rules: %w", ErrValidation)
	// ErrCurrencyMismatch is returned when a deposit currency differs from the account currency.
	ErrCurrencyMismatch = fmt.Errorf("currency mismatch: %w", ErrValidation)
	// ErrInvalidTransition is returned when a confirmation leaves a terminal state.
	ErrInvalidTransition = errors.New("invalid confirmation state transition")
)

// PartialDistributionError reports which sub-account stopped a distribution.
// The whole distribution is rolled back when it is returned.
type PartialDistributionError struct {
	Reference string
	AccountID uuid.UUID
	Category  string
	Err       error
}

func (e *PartialDistributionError) Error() string {
	return fmt.Sprintf(
		"distribution %s aborted at %s account %s: %v",
		e.Reference, e.Category, e.AccountID, e.Err,
	)
}

func (e *PartialDistributionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPartialDistribution) match.
func (e *PartialDistributionError) Is(target error) bool {
	return target == ErrPartialDistribution
}
