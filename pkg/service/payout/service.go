// Package payout debits a category sub-account to pay a merchant.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/eventbus"
	"github.com/amirasaad/carefund/pkg/metrics"
	"github.com/amirasaad/carefund/pkg/repository"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	ledgersvc "github.com/amirasaad/carefund/pkg/service/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutCommand pays Amount from a sub-account to Merchant. Reference makes
// the payout idempotent; without one a fresh reference is generated.
type PayoutCommand struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Merchant    string
	Reference   string
	Description string
}

type Result struct {
	Reference string
	Entry     *ledger.Entry
	Replayed  bool
}

type Service struct {
	uow      repository.UnitOfWork
	accounts *accountsvc.Service
	ledger   *ledgersvc.Service
	bus      eventbus.Bus
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

func NewService(
	uow repository.UnitOfWork,
	accounts *accountsvc.Service,
	ledger *ledgersvc.Service,
	bus eventbus.Bus,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		uow:      uow,
		accounts: accounts,
		ledger:   ledger,
		bus:      bus,
		metrics:  recorder,
		logger:   logger.With("component", "payout"),
	}
}

// Payout debits an active sub-account once per reference.
func (s *Service) Payout(ctx context.Context, cmd PayoutCommand) (*Result, error) {
	logger := s.logger.With("accountID", cmd.AccountID, "amount", cmd.Amount, "merchant", cmd.Merchant)
	logger.Info("Payout started")

	result, err := s.payout(ctx, cmd)
	s.metrics.Payout(err)
	if err != nil {
		logger.Error("Payout failed", "error", err)
		return nil, err
	}
	if !result.Replayed && s.bus != nil {
		evt := events.PayoutCompleted{
			Reference:   result.Reference,
			DependentID: result.Entry.DependentID,
			Merchant:    cmd.Merchant,
			Entry:       events.Snapshot(result.Entry),
			Timestamp:   time.Now().UTC(),
		}
		if err := s.bus.Emit(ctx, evt); err != nil {
			logger.Error("event emit failed", "type", evt.Type(), "error", err)
		}
	}
	logger.Info("Payout completed", "reference", result.Reference, "replayed", result.Replayed)
	return result, nil
}

func (s *Service) payout(ctx context.Context, cmd PayoutCommand) (*Result, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	merchant := strings.TrimSpace(cmd.Merchant)
	if merchant == "" {
		return nil, fmt.Errorf("merchant is required: %w", domain.ErrValidation)
	}
	reference := ledger.PayoutRef(time.Now(), cmd.Reference)
	if replayed, err := s.replay(ctx, reference, cmd.AccountID); replayed != nil || err != nil {
		return replayed, err
	}

	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		description = "Payout to " + merchant
	}
	result := &Result{Reference: reference}
	err := s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		locked, err := s.accounts.LockInOrder(ctx, tx, cmd.AccountID)
		if err != nil {
			return err
		}
		if !locked[cmd.AccountID].IsSubAccount() {
			return domain.ErrNotSubAccount
		}
		result.Entry, err = s.ledger.Post(ctx, tx, ledgersvc.PostCommand{
			AccountID:   cmd.AccountID,
			Amount:      cmd.Amount.Neg(),
			Reference:   reference,
			Description: description,
			Metadata:    ledger.PayoutMeta(ledger.PayoutContext{Merchant: merchant}),
		})
		return err
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		if replayed, rerr := s.replay(ctx, reference, cmd.AccountID); replayed != nil || rerr != nil {
			return replayed, rerr
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) replay(ctx context.Context, reference string, accountID uuid.UUID) (*Result, error) {
	entries, err := s.ledger.FindByReference(ctx, reference)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	if len(entries) != 1 || entries[0].AccountID != accountID {
		return nil, fmt.Errorf("reference %s: %w", reference, domain.ErrDuplicateReference)
	}
	return &Result{Reference: reference, Entry: entries[0], Replayed: true}, nil
}
