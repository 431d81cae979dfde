// Package deposit applies external payment confirmations to the ledger
// exactly once.
//
// A confirmation moves Pending to Applied and never leaves a terminal state.
// The claim on the payment reference, the main account credit, the
// distribution and the Applied mark share one unit of work; the unique
// payment reference is what makes a concurrent duplicate fail instead of
// crediting twice. Unauthorized attempts are recorded per reference and
// funder and never take the claim.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/eventbus"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/amirasaad/carefund/pkg/metrics"
	"github.com/amirasaad/carefund/pkg/repository"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	"github.com/amirasaad/carefund/pkg/service/authz"
	distributionsvc "github.com/amirasaad/carefund/pkg/service/distribution"
	ledgersvc "github.com/amirasaad/carefund/pkg/service/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfirmCommand is a completed-payment notification. DependentAccountID may
// be the dependent's main account id or the dependent id. An empty Currency
// means the account currency.
type ConfirmCommand struct {
	PaymentReference   string
	DependentAccountID uuid.UUID
	Amount             decimal.Decimal
	Currency           string
	FunderID           uuid.UUID
}

type Gateway struct {
	uow          repository.UnitOfWork
	accounts     *accountsvc.Service
	ledger       *ledgersvc.Service
	distribution *distributionsvc.Service
	authorizer   authz.Authorizer
	locker       lock.Locker
	bus          eventbus.Bus
	metrics      *metrics.Recorder
	logger       *slog.Logger
}

// NewGateway creates the gateway. A nil locker relies on storage uniqueness
// alone.
func NewGateway(
	uow repository.UnitOfWork,
	accounts *accountsvc.Service,
	ledger *ledgersvc.Service,
	distribution *distributionsvc.Service,
	authorizer authz.Authorizer,
	locker lock.Locker,
	bus eventbus.Bus,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Gateway {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Gateway{
		uow:          uow,
		accounts:     accounts,
		ledger:       ledger,
		distribution: distribution,
		authorizer:   authorizer,
		locker:       locker,
		bus:          bus,
		metrics:      recorder,
		logger:       logger.With("component", "deposit-gateway"),
	}
}

// applied carries what the unit of work produced to the post-commit steps.
type applied struct {
	confirmation *deposit.Confirmation
	entry        *ledger.Entry
	distribution *distributionsvc.Result
	distErr      error
}

// Confirm applies a payment confirmation. A repeat of an applied deposit
// returns AlreadyApplied with the recorded entry and balance. A reference
// applied for another account, funder or amount fails with
// ErrReferenceConflict and reveals nothing about that deposit.
func (g *Gateway) Confirm(ctx context.Context, cmd ConfirmCommand) (deposit.Result, error) {
	start := time.Now()
	defer g.metrics.ObserveUnitOfWork("confirm", start)

	cmd.PaymentReference = strings.TrimSpace(cmd.PaymentReference)
	logger := g.logger.With(
		"reference", cmd.PaymentReference,
		"dependentAccountID", cmd.DependentAccountID,
		"amount", cmd.Amount,
		"funderID", cmd.FunderID,
	)
	logger.Info("Confirm started")

	main, err := g.validate(ctx, cmd)
	if err != nil {
		logger.Error("Confirm failed", "error", err)
		return deposit.Result{}, err
	}

	ok, err := g.authorizer.IsAuthorized(ctx, cmd.FunderID, main.DependentID)
	if err != nil {
		logger.Error("Confirm failed", "error", err)
		return deposit.Result{}, err
	}
	if !ok {
		return g.reject(ctx, logger, cmd, main)
	}

	if result, found, err := g.replay(ctx, cmd, main); found || err != nil {
		if err != nil {
			logger.Warn("Confirm failed", "error", err)
			return result, err
		}
		logger.Info("Confirm replayed", "status", result.Status)
		return result, nil
	}

	var out *applied
	err = g.locker.WithLock(ctx, "deposit:"+cmd.PaymentReference, func(ctx context.Context) error {
		var err error
		out, err = g.apply(ctx, cmd, main)
		return err
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		if result, found, rerr := g.replay(ctx, cmd, main); found || rerr != nil {
			logger.Info("Confirm replayed after conflict", "status", result.Status)
			return result, rerr
		}
	}
	if err != nil {
		logger.Error("Confirm failed", "error", err)
		return deposit.Result{}, err
	}

	result := g.publish(ctx, cmd, main, out)
	logger.Info("Confirm completed", "entryID", out.entry.ID, "newBalance", *result.NewBalance)
	return result, nil
}

func (g *Gateway) validate(ctx context.Context, cmd ConfirmCommand) (*account.Account, error) {
	if err := ledger.ValidateExternalRef(cmd.PaymentReference); err != nil {
		return nil, err
	}
	if cmd.FunderID == uuid.Nil {
		return nil, fmt.Errorf("funder id is required: %w", domain.ErrValidation)
	}
	main, err := g.accounts.ResolveMain(ctx, cmd.DependentAccountID)
	if err != nil {
		return nil, err
	}
	if cmd.Currency != "" {
		code, err := money.ParseCode(cmd.Currency)
		if err != nil {
			return nil, err
		}
		if code != main.Currency {
			return nil, fmt.Errorf("deposit in %s to a %s account: %w", code, main.Currency, domain.ErrCurrencyMismatch)
		}
	}
	if err := money.ValidateAmount(cmd.Amount, main.Currency); err != nil {
		return nil, err
	}
	return main, nil
}

// replay reports the stored outcome for the command's reference, if any.
func (g *Gateway) replay(ctx context.Context, cmd ConfirmCommand, main *account.Account) (deposit.Result, bool, error) {
	repo, err := g.uow.DepositRepository()
	if err != nil {
		return deposit.Result{}, false, err
	}
	conf, err := repo.GetByReference(ctx, cmd.PaymentReference)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return deposit.Result{}, false, nil
	case err != nil:
		return deposit.Result{}, false, err
	}
	if !conf.SameDeposit(main.ID, cmd.FunderID, cmd.Amount) {
		return deposit.Result{}, true, fmt.Errorf("payment %s: %w", cmd.PaymentReference, domain.ErrReferenceConflict)
	}
	result := conf.Replay()
	g.metrics.Confirmation(string(result.Status))
	return result, true, nil
}

func (g *Gateway) apply(ctx context.Context, cmd ConfirmCommand, main *account.Account) (*applied, error) {
	out := &applied{}
	err := g.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		repo, err := tx.DepositRepository()
		if err != nil {
			return err
		}
		conf, err := deposit.NewPending(cmd.PaymentReference, main.ID, main.DependentID, cmd.FunderID, cmd.Amount, main.Currency)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, conf); err != nil {
			return err
		}

		out.entry, err = g.ledger.Post(ctx, tx, ledgersvc.PostCommand{
			AccountID:   main.ID,
			Amount:      cmd.Amount,
			Reference:   cmd.PaymentReference,
			Category:    main.Label(),
			Description: "Deposit " + cmd.PaymentReference,
			Metadata: ledger.DepositMeta(ledger.DepositContext{
				PaymentReference: cmd.PaymentReference,
				FunderID:         cmd.FunderID,
				Currency:         string(main.Currency),
			}),
		})
		if err != nil {
			return err
		}

		balance := out.entry.BalanceAfter
		out.distribution, out.distErr = g.distribution.Distribute(ctx, tx, distributionsvc.DistributeCommand{
			MainAccountID: main.ID,
			Amount:        cmd.Amount,
			Reference:     cmd.PaymentReference,
		})
		switch {
		case out.distErr != nil:
			conf.DistributionError = out.distErr.Error()
		case out.distribution.MainEntry != nil:
			balance = out.distribution.MainEntry.BalanceAfter
		}

		if err := conf.MarkApplied(out.entry.ID, balance); err != nil {
			return err
		}
		if err := repo.Update(ctx, conf); err != nil {
			return err
		}
		out.confirmation = conf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) publish(ctx context.Context, cmd ConfirmCommand, main *account.Account, out *applied) deposit.Result {
	conf := out.confirmation
	g.metrics.Confirmation(string(deposit.StatusApplied))
	g.emit(ctx, events.DepositApplied{
		PaymentReference: cmd.PaymentReference,
		DependentID:      main.DependentID,
		FunderID:         cmd.FunderID,
		Amount:           cmd.Amount,
		Currency:         string(main.Currency),
		Entry:            events.Snapshot(out.entry),
		Timestamp:        time.Now().UTC(),
	})
	g.distribution.Publish(ctx, cmd.PaymentReference, main.DependentID, out.distribution, out.distErr)

	result := deposit.Result{
		Status:        deposit.StatusApplied,
		Reference:     conf.PaymentReference,
		LedgerEntryID: conf.LedgerEntryID,
		NewBalance:    conf.NewBalance,
	}
	if out.distErr != nil {
		result.Distribution = &deposit.DistributionOutcome{Remainder: cmd.Amount, Error: out.distErr.Error()}
	} else {
		result.Distribution = out.distribution.Outcome()
	}
	return result
}

// reject records the attempt of an unauthorized funder. The record is kept
// per reference and funder and never claims the reference.
func (g *Gateway) reject(
	ctx context.Context,
	logger *slog.Logger,
	cmd ConfirmCommand,
	main *account.Account,
) (deposit.Result, error) {
	reason := domain.ErrAuthorization.Error()
	err := g.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		repo, err := tx.DepositRepository()
		if err != nil {
			return err
		}
		conf, err := deposit.NewPending(cmd.PaymentReference, main.ID, main.DependentID, cmd.FunderID, cmd.Amount, main.Currency)
		if err != nil {
			return err
		}
		if err := conf.MarkRejected(reason); err != nil {
			return err
		}
		return repo.RecordRejection(ctx, conf)
	})
	switch {
	case err == nil:
		g.emit(ctx, events.DepositRejected{
			PaymentReference: cmd.PaymentReference,
			DependentID:      main.DependentID,
			FunderID:         cmd.FunderID,
			Reason:           reason,
			Timestamp:        time.Now().UTC(),
		})
	case errors.Is(err, domain.ErrAlreadyExists):
	default:
		logger.Error("recording rejection failed", "error", err)
	}
	g.metrics.Confirmation(string(deposit.StatusRejected))
	logger.Warn("Confirm rejected", "reason", reason)
	return deposit.Result{
		Status:    deposit.StatusRejected,
		Reference: cmd.PaymentReference,
		Reason:    reason,
	}, fmt.Errorf("funder %s for dependent %s: %w", cmd.FunderID, main.DependentID, domain.ErrAuthorization)
}

// RetryDistribution re-runs the distribution of an applied deposit.
func (g *Gateway) RetryDistribution(ctx context.Context, paymentReference string) (*distributionsvc.Result, error) {
	return g.distribution.Retry(ctx, paymentReference)
}

// Get returns the stored confirmation for a payment reference.
func (g *Gateway) Get(ctx context.Context, paymentReference string) (*deposit.Confirmation, error) {
	repo, err := g.uow.DepositRepository()
	if err != nil {
		return nil, err
	}
	return repo.GetByReference(ctx, paymentReference)
}

// Rejections returns the unauthorized attempts recorded for a payment
// reference, oldest first.
func (g *Gateway) Rejections(ctx context.Context, paymentReference string) ([]*deposit.Confirmation, error) {
	repo, err := g.uow.DepositRepository()
	if err != nil {
		return nil, err
	}
	return repo.Rejections(ctx, paymentReference)
}

func (g *Gateway) emit(ctx context.Context, evt events.Event) {
	if g.bus == nil {
		return
	}
	if err := g.bus.Emit(ctx, evt); err != nil {
		g.logger.Error("event emit failed", "type", evt.Type(), "error", err)
	}
}
