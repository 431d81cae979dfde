// Package transfer moves funds between two category sub-accounts of the same
// dependent and reverses such moves.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
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

type TransferCommand struct {
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// Result is the pair of entries a transfer or reversal wrote. Replayed is
// set when the pair already existed.
type Result struct {
	Reference string
	Outgoing  *ledger.Entry
	Incoming  *ledger.Entry
	Replayed  bool
}

type Service struct {
	uow      repository.UnitOfWork
	accounts *accountsvc.Service
	ledger   *ledgersvc.Service
	bus      eventbus.Bus
	metrics  *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
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
		logger:   logger.With("component", "transfer"),
		now:      time.Now,
	}
}

// Transfer debits the source sub-account and credits the destination in one
// unit of work under a shared TRANSFER_ reference. With an idempotency key a
// repeated call returns the stored pair.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) (*Result, error) {
	logger := s.logger.With("from", cmd.FromAccountID, "to", cmd.ToAccountID, "amount", cmd.Amount)
	logger.Info("Transfer started")

	result, err := s.transfer(ctx, cmd)
	s.metrics.Transfer("transfer", err)
	if err != nil {
		logger.Error("Transfer failed", "error", err)
		return nil, err
	}
	if !result.Replayed {
		s.emit(ctx, events.TransferCompleted{
			Reference:   result.Reference,
			DependentID: result.Outgoing.DependentID,
			Outgoing:    events.Snapshot(result.Outgoing),
			Incoming:    events.Snapshot(result.Incoming),
			Timestamp:   s.now().UTC(),
		})
	}
	logger.Info("Transfer completed", "reference", result.Reference, "replayed", result.Replayed)
	return result, nil
}

func (s *Service) transfer(ctx context.Context, cmd TransferCommand) (*Result, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return nil, domain.ErrSameCategory
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	reference := ledger.TransferRef(s.now(), key)
	if key != "" {
		if result, err := s.replay(ctx, reference, cmd.FromAccountID, cmd.ToAccountID); result != nil || err != nil {
			return result, err
		}
	}

	result := &Result{Reference: reference}
	err := s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		locked, err := s.accounts.LockInOrder(ctx, tx, cmd.FromAccountID, cmd.ToAccountID)
		if err != nil {
			return err
		}
		from, to := locked[cmd.FromAccountID], locked[cmd.ToAccountID]
		if err := checkPair(from, to); err != nil {
			return err
		}
		result.Outgoing, result.Incoming, err = s.postPair(ctx, tx, from, to, cmd.Amount, reference, pairText{
			outgoing: describe(cmd.Description, "Outgoing transfer to "+to.Label()),
			incoming: describe(cmd.Description, "Incoming transfer from "+from.Label()),
			outMeta:  ledger.TransferMeta(ledger.TransferContext{CounterpartAccountID: to.ID, CounterpartCategory: to.Label()}),
			inMeta:   ledger.TransferMeta(ledger.TransferContext{CounterpartAccountID: from.ID, CounterpartCategory: from.Label()}),
		})
		return err
	})
	if errors.Is(err, domain.ErrDuplicateReference) && key != "" {
		if replayed, rerr := s.replay(ctx, reference, cmd.FromAccountID, cmd.ToAccountID); replayed != nil || rerr != nil {
			return replayed, rerr
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkPair enforces the transfer preconditions on two locked accounts.
func checkPair(from, to *account.Account) error {
	if !from.IsSubAccount() || !to.IsSubAccount() {
		return domain.ErrNotSubAccount
	}
	if from.DependentID != to.DependentID || from.ParentAccountID == nil || to.ParentAccountID == nil ||
		*from.ParentAccountID != *to.ParentAccountID {
		return domain.ErrDifferentDependent
	}
	if from.Category == to.Category {
		return domain.ErrSameCategory
	}
	if from.Currency != to.Currency {
		return domain.ErrCurrencyMismatch
	}
	return nil
}

type pairText struct {
	outgoing, incoming string
	outMeta, inMeta    ledger.Metadata
}

func (s *Service) postPair(
	ctx context.Context,
	tx repository.UnitOfWork,
	from, to *account.Account,
	amount decimal.Decimal,
	reference string,
	text pairText,
) (*ledger.Entry, *ledger.Entry, error) {
	outgoing, err := s.ledger.Post(ctx, tx, ledgersvc.PostCommand{
		AccountID:   from.ID,
		Amount:      amount.Neg(),
		Reference:   reference,
		Category:    from.Label(),
		Description: text.outgoing,
		Metadata:    text.outMeta,
	})
	if err != nil {
		return nil, nil, err
	}
	incoming, err := s.ledger.Post(ctx, tx, ledgersvc.PostCommand{
		AccountID:   to.ID,
		Amount:      amount,
		Reference:   reference,
		Category:    to.Label(),
		Description: text.incoming,
		Metadata:    text.inMeta,
	})
	if err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

// replay returns the stored pair for reference, or nil when there is none.
// A stored pair between other accounts is a reference collision.
func (s *Service) replay(ctx context.Context, reference string, from, to uuid.UUID) (*Result, error) {
	entries, err := s.ledger.FindByReference(ctx, reference)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	result := &Result{Reference: reference, Replayed: true}
	for _, e := range entries {
		if e.Type == ledger.Debit {
			result.Outgoing = e
		} else {
			result.Incoming = e
		}
	}
	if result.Outgoing == nil || result.Incoming == nil ||
		result.Outgoing.AccountID != from || result.Incoming.AccountID != to {
		return nil, fmt.Errorf("reference %s: %w", reference, domain.ErrDuplicateReference)
	}
	return result, nil
}

// Reverse undoes a completed transfer by posting the mirrored pair under
// REVERSAL_<reference>. Reversing twice returns the first reversal.
func (s *Service) Reverse(ctx context.Context, reference, reason string) (*Result, error) {
	logger := s.logger.With("reference", reference)
	logger.Info("Reverse started")

	result, err := s.reverse(ctx, reference, reason)
	s.metrics.Transfer("reversal", err)
	if err != nil {
		logger.Error("Reverse failed", "error", err)
		return nil, err
	}
	if !result.Replayed {
		s.emit(ctx, events.ReversalCompleted{
			OriginalReference: reference,
			Reference:         result.Reference,
			DependentID:       result.Outgoing.DependentID,
			Outgoing:          events.Snapshot(result.Outgoing),
			Incoming:          events.Snapshot(result.Incoming),
			Timestamp:         s.now().UTC(),
		})
	}
	logger.Info("Reverse completed", "reversal", result.Reference, "replayed", result.Replayed)
	return result, nil
}

func (s *Service) reverse(ctx context.Context, reference, reason string) (*Result, error) {
	if !ledger.IsTransferRef(reference) {
		return nil, fmt.Errorf("%q is not a transfer reference: %w", reference, domain.ErrValidation)
	}
	entries, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	original := &Result{Reference: reference}
	for _, e := range entries {
		if e.Type == ledger.Debit {
			original.Outgoing = e
		} else {
			original.Incoming = e
		}
	}
	if len(entries) != 2 || original.Outgoing == nil || original.Incoming == nil {
		return nil, fmt.Errorf("transfer %s: %w", reference, domain.ErrNotFound)
	}

	// The reversal moves funds from the original destination back to the source.
	from, to := original.Incoming.AccountID, original.Outgoing.AccountID
	reversalRef := ledger.ReversalRef(reference)
	if replayed, err := s.replay(ctx, reversalRef, from, to); replayed != nil || err != nil {
		return replayed, err
	}

	result := &Result{Reference: reversalRef}
	meta := ledger.ReversalMeta(ledger.ReversalContext{OriginalReference: reference, Reason: reason})
	err = s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		locked, err := s.accounts.LockInOrder(ctx, tx, from, to)
		if err != nil {
			return err
		}
		src, dst := locked[from], locked[to]
		result.Outgoing, result.Incoming, err = s.postPair(ctx, tx, src, dst, original.Incoming.Amount, reversalRef, pairText{
			outgoing: "Reversal of " + reference,
			incoming: "Reversal of " + reference,
			outMeta:  meta,
			inMeta:   meta,
		})
		return err
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		if replayed, rerr := s.replay(ctx, reversalRef, from, to); replayed != nil || rerr != nil {
			return replayed, rerr
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) emit(ctx context.Context, evt events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Emit(ctx, evt); err != nil {
		s.logger.Error("event emit failed", "type", evt.Type(), "error", err)
	}
}

func describe(given, fallback string) string {
	if d := strings.TrimSpace(given); d != "" {
		return d
	}
	return fallback
}
