// Package account is the account store: it creates a dependent's account set
// and owns the only code path that writes a balance.
package account

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OnboardCommand creates a dependent's account set. Empty Categories and
// Currency fall back to the service defaults.
type OnboardCommand struct {
	DependentID uuid.UUID
	CaregiverID uuid.UUID
	Categories  []string
	Currency    string
}

// Service provides account lifecycle and balance operations.
type Service struct {
	uow        repository.UnitOfWork
	logger     *slog.Logger
	categories []account.Category
	currency   money.Code
}

// NewService creates an account store. categories is the set new dependents
// receive when onboarding does not name one.
func NewService(
	uow repository.UnitOfWork,
	logger *slog.Logger,
	categories []account.Category,
	currency money.Code,
) *Service {
	if len(categories) == 0 {
		categories = account.Categories()
	}
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return &Service{
		uow:        uow,
		logger:     logger.With("component", "account-store"),
		categories: categories,
		currency:   currency,
	}
}

// CreateDependentAccountSet creates the main account and one zero-balance
// sub-account per category in one unit of work.
func (s *Service) CreateDependentAccountSet(ctx context.Context, cmd OnboardCommand) (*account.Set, error) {
	logger := s.logger.With("dependentID", cmd.DependentID)
	logger.Info("CreateDependentAccountSet started")

	categories := s.categories
	if len(cmd.Categories) > 0 {
		parsed, err := account.ParseCategories(cmd.Categories)
		if err != nil {
			return nil, err
		}
		categories = parsed
	}
	currency := s.currency
	if cmd.Currency != "" {
		code, err := money.ParseCode(cmd.Currency)
		if err != nil {
			return nil, err
		}
		currency = code
	}

	set, err := account.NewSet(cmd.DependentID, cmd.CaregiverID, currency, categories)
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		existing, err := repo.FindMainByDependent(ctx, cmd.DependentID)
		if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("dependent %s: %w", cmd.DependentID, domain.ErrDuplicateAccount)
		}
		return repo.Create(ctx, set.All()...)
	})
	if err != nil {
		logger.Error("CreateDependentAccountSet failed", "error", err)
		return nil, err
	}
	logger.Info("CreateDependentAccountSet completed", "mainAccountID", set.Main.ID, "subAccounts", len(set.Subs))
	return set, nil
}

// AdjustBalance applies a signed delta to an account under its row lock and
// returns the account as it is afterwards; its Balance is the new balance.
// It must run inside a unit of work and is the only writer of balances.
func (s *Service) AdjustBalance(
	ctx context.Context,
	uow repository.UnitOfWork,
	accountID uuid.UUID,
	delta decimal.Decimal,
	expected account.Status,
) (*account.Account, error) {
	repo, err := uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	acct, err := repo.GetForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := money.ValidateAmount(delta.Abs(), acct.Currency); err != nil {
		return nil, err
	}
	next, err := acct.Apply(delta, expected)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateBalance(ctx, accountID, next); err != nil {
		return nil, err
	}
	acct.Balance = next
	acct.Version++
	return acct, nil
}

// LockInOrder takes row locks on the given accounts in ascending id order
// and returns them keyed by id. Duplicate ids are locked once.
func (s *Service) LockInOrder(
	ctx context.Context,
	uow repository.UnitOfWork,
	ids ...uuid.UUID,
) (map[uuid.UUID]*account.Account, error) {
	repo, err := uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	locked := make(map[uuid.UUID]*account.Account, len(ids))
	for _, id := range SortIDs(ids) {
		acct, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = acct
	}
	return locked, nil
}

// SortIDs returns the distinct ids in ascending byte order, the global lock
// order for multi-account work.
func SortIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// SetStatus activates, deactivates or freezes an account. Accounts are never
// deleted.
func (s *Service) SetStatus(ctx context.Context, accountID uuid.UUID, status account.Status) error {
	logger := s.logger.With("accountID", accountID, "status", status)
	if _, err := account.ParseStatus(string(status)); err != nil {
		return err
	}
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		if _, err := repo.GetForUpdate(ctx, accountID); err != nil {
			return err
		}
		return repo.UpdateStatus(ctx, accountID, status)
	})
	if err != nil {
		logger.Error("SetStatus failed", "error", err)
		return err
	}
	logger.Info("SetStatus completed")
	return nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (*account.Account, error) {
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, accountID)
}

// ListForDependent returns the dependent's main account followed by its
// sub-accounts in category order.
func (s *Service) ListForDependent(ctx context.Context, dependentID uuid.UUID) ([]*account.Account, error) {
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	accounts, err := repo.ListByDependent(ctx, dependentID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("dependent %s: %w", dependentID, domain.ErrAccountNotFound)
	}
	return accounts, nil
}

// LoadSet groups a dependent's accounts into a Set.
func (s *Service) LoadSet(ctx context.Context, dependentID uuid.UUID) (*account.Set, error) {
	accounts, err := s.ListForDependent(ctx, dependentID)
	if err != nil {
		return nil, err
	}
	return GroupSet(accounts)
}

// GroupSet builds a Set from the accounts of one dependent.
func GroupSet(accounts []*account.Account) (*account.Set, error) {
	set := &account.Set{}
	for _, a := range accounts {
		if a.IsMainAccount {
			set.Main = a
			continue
		}
		set.Subs = append(set.Subs, a)
	}
	if set.Main == nil {
		return nil, fmt.Errorf("main account: %w", domain.ErrAccountNotFound)
	}
	return set, nil
}

// ResolveMain accepts either a main account id or a dependent id and returns
// the dependent's main account.
func (s *Service) ResolveMain(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	acct, err := repo.Get(ctx, id)
	switch {
	case err == nil && acct.IsMainAccount:
		return acct, nil
	case err == nil:
		return nil, fmt.Errorf("account %s is a %s sub-account: %w", id, acct.Category, domain.ErrValidation)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return repo.FindMainByDependent(ctx, id)
}
