package account

import (
	"fmt"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is either a dependent's main account or one of its category
// sub-accounts.
//
// Invariants:
//   - Balance is never negative.
//   - A main account has no parent and no category.
//   - A sub-account has a parent and a valid category.
//   - Only active accounts accept balance changes.
type Account struct {
	ID              uuid.UUID
	DependentID     uuid.UUID
	CaregiverID     *uuid.UUID
	IsMainAccount   bool
	Category        Category
	ParentAccountID *uuid.UUID
	Currency        money.Code
	Balance         decimal.Decimal
	Status          Status
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsSubAccount reports whether the account is a category bucket.
func (a *Account) IsSubAccount() bool { return !a.IsMainAccount }

// Label is "main" for a main account, else its category.
func (a *Account) Label() string {
	if a.IsMainAccount {
		return "main"
	}
	return string(a.Category)
}

// Apply computes the balance that results from delta without mutating the
// account. It enforces status and non-negativity.
func (a *Account) Apply(delta decimal.Decimal, expected Status) (decimal.Decimal, error) {
	if a.Status != expected || !a.Status.CanMutate() {
		return decimal.Zero, fmt.Errorf("account %s is %s: %w", a.ID, a.Status, domain.ErrAccountNotActive)
	}
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf(
			"account %s balance %s cannot cover %s: %w",
			a.ID, a.Balance, delta.Neg(), domain.ErrInsufficientFunds,
		)
	}
	return next, nil
}

// Builder provides a fluent API for constructing Account instances.
type Builder struct {
	id          uuid.UUID
	dependentID uuid.UUID
	caregiverID *uuid.UUID
	isMain      bool
	category    Category
	parentID    *uuid.UUID
	currency    money.Code
	balance     decimal.Decimal
	status      Status
	createdAt   time.Time
}

// New creates a Builder for an active main account in the default currency.
func New() *Builder {
	return &Builder{
		id:        uuid.New(),
		isMain:    true,
		currency:  money.DefaultCurrency,
		balance:   decimal.Zero,
		status:    StatusActive,
		createdAt: time.Now().UTC(),
	}
}

// WithID sets the account id.
func (b *Builder) WithID(id uuid.UUID) *Builder {
	b.id = id
	return b
}

// WithDependent sets the owning dependent. Mandatory.
func (b *Builder) WithDependent(dependentID uuid.UUID) *Builder {
	b.dependentID = dependentID
	return b
}

// WithCaregiver sets the optional managing caregiver or funder.
func (b *Builder) WithCaregiver(caregiverID uuid.UUID) *Builder {
	if caregiverID != uuid.Nil {
		b.caregiverID = &caregiverID
	}
	return b
}

// AsSubAccount turns the account into a category bucket of parent.
func (b *Builder) AsSubAccount(parentID uuid.UUID, category Category) *Builder {
	b.isMain = false
	b.parentID = &parentID
	b.category = category
	return b
}

// WithCurrency sets the account currency.
func (b *Builder) WithCurrency(code money.Code) *Builder {
	b.currency = code
	return b
}

// WithBalance sets the balance. Only for hydration and test setup.
func (b *Builder) WithBalance(balance decimal.Decimal) *Builder {
	b.balance = balance
	return b
}

// WithStatus sets the status. Only for hydration and test setup.
func (b *Builder) WithStatus(status Status) *Builder {
	b.status = status
	return b
}

// Build validates the invariants and returns the account.
func (b *Builder) Build() (*Account, error) {
	if b.dependentID == uuid.Nil {
		return nil, fmt.Errorf("dependent id is required: %w", domain.ErrValidation)
	}
	if b.balance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}
	if _, err := ParseStatus(string(b.status)); err != nil {
		return nil, err
	}
	if b.isMain && (b.parentID != nil || b.category != "") {
		return nil, fmt.Errorf("main account cannot have a parent or category: %w", domain.ErrValidation)
	}
	if !b.isMain {
		if b.parentID == nil || *b.parentID == uuid.Nil {
			return nil, fmt.Errorf("sub-account requires a parent: %w", domain.ErrValidation)
		}
		if !b.category.Valid() {
			return nil, fmt.Errorf("%q: %w", b.category, domain.ErrInvalidCategory)
		}
	}
	return &Account{
		ID:              b.id,
		DependentID:     b.dependentID,
		CaregiverID:     b.caregiverID,
		IsMainAccount:   b.isMain,
		Category:        b.category,
		ParentAccountID: b.parentID,
		Currency:        b.currency,
		Balance:         b.balance,
		Status:          b.status,
		CreatedAt:       b.createdAt,
		UpdatedAt:       b.createdAt,
	}, nil
}

// Set is a dependent's main account with its category sub-accounts.
type Set struct {
	Main *Account
	Subs []*Account
}

// NewSet builds a main account and one sub-account per category, all with a
// zero balance. Duplicate categories are collapsed.
func NewSet(
	dependentID uuid.UUID,
	caregiverID uuid.UUID,
	currency money.Code,
	categories []Category,
) (*Set, error) {
	main, err := New().
		WithDependent(dependentID).
		WithCaregiver(caregiverID).
		WithCurrency(currency).
		Build()
	if err != nil {
		return nil, err
	}
	set := &Set{Main: main, Subs: make([]*Account, 0, len(categories))}
	seen := make(map[Category]struct{}, len(categories))
	for _, c := range categories {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		sub, err := New().
			WithDependent(dependentID).
			WithCaregiver(caregiverID).
			WithCurrency(currency).
			AsSubAccount(main.ID, c).
			Build()
		if err != nil {
			return nil, err
		}
		set.Subs = append(set.Subs, sub)
	}
	return set, nil
}

// Sub returns the sub-account for a category, if present.
func (s *Set) Sub(c Category) (*Account, bool) {
	for _, a := range s.Subs {
		if a.Category == c {
			return a, true
		}
	}
	return nil, false
}

// All returns the main account followed by the sub-accounts.
func (s *Set) All() []*Account {
	return append([]*Account{s.Main}, s.Subs...)
}

// Total is the dependent's total holdings across all accounts.
func (s *Set) Total() decimal.Decimal {
	total := s.Main.Balance
	for _, a := range s.Subs {
		total = total.Add(a.Balance)
	}
	return total
}
