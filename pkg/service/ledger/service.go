// Package ledger posts balance changes together with their ledger entries.
package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostCommand is one signed balance change. An empty Category defaults to
// the account's label.
type PostCommand struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Reference   string
	Category    string
	Description string
	Metadata    ledger.Metadata
}

type Service struct {
	uow      repository.UnitOfWork
	accounts *accountsvc.Service
	logger   *slog.Logger
}

func NewService(uow repository.UnitOfWork, accounts *accountsvc.Service, logger *slog.Logger) *Service {
	return &Service{
		uow:      uow,
		accounts: accounts,
		logger:   logger.With("component", "ledger"),
	}
}

// Post adjusts the balance and appends the matching entry in the caller's
// unit of work, so both commit or neither does. The entry's BalanceAfter is
// the balance returned by the account store.
func (s *Service) Post(ctx context.Context, uow repository.UnitOfWork, cmd PostCommand) (*ledger.Entry, error) {
	if strings.TrimSpace(cmd.Reference) == "" {
		return nil, domain.ErrMissingReference
	}
	if cmd.Amount.IsZero() {
		return nil, domain.ErrInvalidAmount
	}
	acct, err := s.accounts.AdjustBalance(ctx, uow, cmd.AccountID, cmd.Amount, account.StatusActive)
	if err != nil {
		return nil, err
	}
	category := cmd.Category
	if category == "" {
		category = acct.Label()
	}
	entry, err := ledger.NewEntry(
		acct.ID,
		acct.DependentID,
		cmd.Amount,
		acct.Balance,
		cmd.Reference,
		category,
		cmd.Description,
		cmd.Metadata,
	)
	if err != nil {
		return nil, err
	}
	repo, err := uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Append(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Debug("entry posted",
		"reference", entry.Reference,
		"accountID", entry.AccountID,
		"amount", entry.Amount,
		"balanceAfter", entry.BalanceAfter,
	)
	return entry, nil
}

// ExistsByReference reports whether any entry carries reference.
func (s *Service) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return false, err
	}
	return repo.ExistsByReference(ctx, reference)
}

// FindByReference returns the entries sharing reference in posting order.
func (s *Service) FindByReference(ctx context.Context, reference string) ([]*ledger.Entry, error) {
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	return repo.FindByReference(ctx, reference)
}
