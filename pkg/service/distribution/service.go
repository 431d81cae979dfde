// Package distribution splits a main-account credit across the dependent's
// category sub-accounts.
//
// A distribution for source reference R writes one debit on the main account
// under R:distribution and one credit per funded category under R:<category>.
// All of them commit together or not at all, and a second run for R finds the
// main debit and does nothing.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
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

// RulesSource resolves the active allocation table for a dependent, reading
// through tx when one is given.
type RulesSource interface {
	Rules(ctx context.Context, tx repository.UnitOfWork, dependentID uuid.UUID) (allocation.RuleSet, error)
}

type DistributeCommand struct {
	MainAccountID uuid.UUID
	Amount        decimal.Decimal
	Reference     string
}

// Result describes a distribution. MainEntry is nil when nothing moved.
type Result struct {
	Reference          string
	DependentID        uuid.UUID
	Plan               allocation.Plan
	MainEntry          *ledger.Entry
	Credits            []*ledger.Entry
	AlreadyDistributed bool
}

// Entries returns the main debit followed by the sub-account credits.
func (r *Result) Entries() []*ledger.Entry {
	if r.MainEntry == nil {
		return r.Credits
	}
	return append([]*ledger.Entry{r.MainEntry}, r.Credits...)
}

// Outcome summarizes the result for a deposit response.
func (r *Result) Outcome() *deposit.DistributionOutcome {
	return &deposit.DistributionOutcome{
		Distributed: r.Plan.Distributed,
		Remainder:   r.Plan.Remainder,
		EntryCount:  len(r.Entries()),
	}
}

type Service struct {
	uow      repository.UnitOfWork
	accounts *accountsvc.Service
	ledger   *ledgersvc.Service
	rules    RulesSource
	bus      eventbus.Bus
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

func NewService(
	uow repository.UnitOfWork,
	accounts *accountsvc.Service,
	ledger *ledgersvc.Service,
	rules RulesSource,
	bus eventbus.Bus,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		uow:      uow,
		accounts: accounts,
		ledger:   ledger,
		rules:    rules,
		bus:      bus,
		metrics:  recorder,
		logger:   logger.With("component", "distribution"),
	}
}

// Distribute runs inside the caller's unit of work as a nested unit: on error
// every entry and balance change it made is rolled back, and the caller may
// still commit its own work. Events are left to the caller, who must Publish
// after commit.
func (s *Service) Distribute(ctx context.Context, uow repository.UnitOfWork, cmd DistributeCommand) (*Result, error) {
	logger := s.logger.With("reference", cmd.Reference, "mainAccountID", cmd.MainAccountID)
	if cmd.Reference == "" {
		return nil, domain.ErrMissingReference
	}
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var result *Result
	err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
		var err error
		result, err = s.distribute(ctx, tx, cmd)
		return err
	})
	if err != nil {
		logger.Error("Distribute failed", "error", err)
		return nil, err
	}
	logger.Info("Distribute completed",
		"distributed", result.Plan.Distributed,
		"remainder", result.Plan.Remainder,
		"entries", len(result.Entries()),
		"alreadyDistributed", result.AlreadyDistributed,
	)
	return result, nil
}

func (s *Service) distribute(ctx context.Context, tx repository.UnitOfWork, cmd DistributeCommand) (*Result, error) {
	ledgerRepo, err := tx.LedgerRepository()
	if err != nil {
		return nil, err
	}
	accountRepo, err := tx.AccountRepository()
	if err != nil {
		return nil, err
	}

	mainRef := ledger.DistributionRef(cmd.Reference)
	done, err := ledgerRepo.ExistsByReference(ctx, mainRef)
	if err != nil {
		return nil, err
	}
	if done {
		return s.existing(ctx, ledgerRepo, cmd)
	}

	main, err := accountRepo.Get(ctx, cmd.MainAccountID)
	if err != nil {
		return nil, err
	}
	if !main.IsMainAccount {
		return nil, fmt.Errorf("account %s: %w", main.ID, domain.ErrValidation)
	}
	result := &Result{Reference: cmd.Reference, DependentID: main.DependentID}

	rules, err := s.rules.Rules(ctx, tx, main.DependentID)
	if err != nil {
		return nil, err
	}
	plan, err := rules.Split(cmd.Amount, main.Currency.Precision())
	if err != nil {
		return nil, err
	}
	result.Plan = plan
	if plan.Empty() {
		return result, nil
	}

	targets, err := s.targets(ctx, accountRepo, main, plan, cmd.Reference)
	if err != nil {
		return nil, err
	}
	ids := []uuid.UUID{main.ID}
	for _, sub := range targets {
		ids = append(ids, sub.ID)
	}
	if _, err := s.accounts.LockInOrder(ctx, tx, ids...); err != nil {
		return nil, err
	}

	result.MainEntry, err = s.ledger.Post(ctx, tx, ledgersvc.PostCommand{
		AccountID:   main.ID,
		Amount:      plan.Distributed.Neg(),
		Reference:   mainRef,
		Category:    main.Label(),
		Description: fmt.Sprintf("Distribution of %s to categories", plan.Distributed),
		Metadata: ledger.AllocationMeta(ledger.AllocationContext{
			SourceReference: cmd.Reference,
			Percentage:      rules.Total(),
			Distributed:     plan.Distributed,
			Remainder:       plan.Remainder,
		}),
	})
	if err != nil {
		return nil, partial(cmd.Reference, main, err)
	}

	for _, share := range plan.Shares {
		sub := targets[share.Category]
		entry, err := s.ledger.Post(ctx, tx, ledgersvc.PostCommand{
			AccountID:   sub.ID,
			Amount:      share.Amount,
			Reference:   ledger.AllocationRef(cmd.Reference, string(share.Category)),
			Category:    string(share.Category),
			Description: fmt.Sprintf("Allocation of %s%% to %s", share.Percentage, share.Category),
			Metadata: ledger.AllocationMeta(ledger.AllocationContext{
				SourceReference: cmd.Reference,
				Percentage:      share.Percentage,
			}),
		})
		if err != nil {
			return nil, partial(cmd.Reference, sub, err)
		}
		result.Credits = append(result.Credits, entry)
	}
	return result, nil
}

// targets maps every funded category to the main account's sub-account.
func (s *Service) targets(
	ctx context.Context,
	repo repository.AccountRepository,
	main *account.Account,
	plan allocation.Plan,
	reference string,
) (map[account.Category]*account.Account, error) {
	accounts, err := repo.ListByDependent(ctx, main.DependentID)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[account.Category]*account.Account, len(accounts))
	for _, a := range accounts {
		if a.IsSubAccount() && a.ParentAccountID != nil && *a.ParentAccountID == main.ID {
			byCategory[a.Category] = a
		}
	}
	targets := make(map[account.Category]*account.Account, len(plan.Shares))
	for _, share := range plan.Shares {
		sub, ok := byCategory[share.Category]
		if !ok {
			return nil, &domain.PartialDistributionError{
				Reference: reference,
				Category:  string(share.Category),
				Err:       fmt.Errorf("no %s sub-account: %w", share.Category, domain.ErrAccountNotFound),
			}
		}
		targets[share.Category] = sub
	}
	return targets, nil
}

func (s *Service) existing(ctx context.Context, repo repository.LedgerRepository, cmd DistributeCommand) (*Result, error) {
	result := &Result{Reference: cmd.Reference, AlreadyDistributed: true}
	entries, err := repo.List(ctx, repository.LedgerFilter{
		ReferencePrefix: cmd.Reference + ":",
		Ascending:       true,
	})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Metadata.Allocation == nil || e.Metadata.Allocation.SourceReference != cmd.Reference {
			continue
		}
		result.DependentID = e.DependentID
		if e.Reference == ledger.DistributionRef(cmd.Reference) {
			result.MainEntry = e
			result.Plan.Distributed = e.Metadata.Allocation.Distributed
			result.Plan.Remainder = e.Metadata.Allocation.Remainder
			result.Plan.Amount = e.Metadata.Allocation.Distributed.Add(e.Metadata.Allocation.Remainder)
			continue
		}
		result.Credits = append(result.Credits, e)
	}
	return result, nil
}

func partial(reference string, acct *account.Account, err error) error {
	var pde *domain.PartialDistributionError
	if errors.As(err, &pde) {
		return err
	}
	return &domain.PartialDistributionError{
		Reference: reference,
		AccountID: acct.ID,
		Category:  acct.Label(),
		Err:       err,
	}
}

// Publish emits the event for a committed distribution, or for a failed one
// when err is set. Already-distributed and empty results emit nothing.
func (s *Service) Publish(ctx context.Context, reference string, dependentID uuid.UUID, result *Result, err error) {
	now := time.Now().UTC()
	if err != nil {
		s.metrics.Distribution("failed")
		evt := events.DistributionFailed{
			SourceReference: reference,
			DependentID:     dependentID,
			Reason:          err.Error(),
			Timestamp:       now,
		}
		var pde *domain.PartialDistributionError
		if errors.As(err, &pde) {
			evt.AccountID = pde.AccountID
			evt.Category = pde.Category
		}
		s.emit(ctx, evt)
		return
	}
	switch {
	case result.AlreadyDistributed:
		s.metrics.Distribution("skipped")
	case result.MainEntry == nil:
		s.metrics.Distribution("noop")
	default:
		s.metrics.Distribution("applied")
		s.emit(ctx, events.DistributionApplied{
			SourceReference: reference,
			DependentID:     result.DependentID,
			Distributed:     result.Plan.Distributed,
			Remainder:       result.Plan.Remainder,
			Entries:         events.Snapshots(result.Entries()),
			Timestamp:       now,
		})
	}
}

func (s *Service) emit(ctx context.Context, evt events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Emit(ctx, evt); err != nil {
		s.logger.Error("event emit failed", "type", evt.Type(), "error", err)
	}
}

// Retry distributes the amount a deposit confirmation credited, in its own
// unit of work. It is a no-op when that distribution already happened.
func (s *Service) Retry(ctx context.Context, paymentReference string) (*Result, error) {
	logger := s.logger.With("reference", paymentReference)
	logger.Info("Retry started")

	depositRepo, err := s.uow.DepositRepository()
	if err != nil {
		return nil, err
	}
	conf, err := depositRepo.GetByReference(ctx, paymentReference)
	if err != nil {
		return nil, err
	}
	if conf.State != deposit.StateApplied {
		return nil, fmt.Errorf("confirmation %s is %s: %w", paymentReference, conf.State, domain.ErrInvalidTransition)
	}

	var result *Result
	err = s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		var err error
		result, err = s.Distribute(ctx, tx, DistributeCommand{
			MainAccountID: conf.MainAccountID,
			Amount:        conf.Amount,
			Reference:     paymentReference,
		})
		if err != nil {
			return err
		}
		repo, err := tx.DepositRepository()
		if err != nil {
			return err
		}
		stored, err := repo.GetByReference(ctx, paymentReference)
		if err != nil {
			return err
		}
		stored.DistributionError = ""
		if result.MainEntry != nil && !result.AlreadyDistributed {
			balance := result.MainEntry.BalanceAfter
			stored.NewBalance = &balance
		}
		stored.UpdatedAt = time.Now().UTC()
		return repo.Update(ctx, stored)
	})
	if err != nil {
		logger.Error("Retry failed", "error", err)
		s.recordFailure(ctx, paymentReference, err)
		s.Publish(ctx, paymentReference, conf.DependentID, nil, err)
		return nil, err
	}
	s.Publish(ctx, paymentReference, conf.DependentID, result, nil)
	logger.Info("Retry completed", "alreadyDistributed", result.AlreadyDistributed)
	return result, nil
}

func (s *Service) recordFailure(ctx context.Context, paymentReference string, cause error) {
	err := s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		repo, err := tx.DepositRepository()
		if err != nil {
			return err
		}
		stored, err := repo.GetByReference(ctx, paymentReference)
		if err != nil {
			return err
		}
		stored.DistributionError = cause.Error()
		stored.UpdatedAt = time.Now().UTC()
		return repo.Update(ctx, stored)
	})
	if err != nil {
		s.logger.Error("recording distribution failure failed", "reference", paymentReference, "error", err)
	}
}
