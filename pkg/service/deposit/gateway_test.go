package deposit_test

import (
	"context"
	"sync"
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/amirasaad/carefund/pkg/service/authz"
	depositsvc "github.com/amirasaad/carefund/pkg/service/deposit"
	"github.com/amirasaad/carefund/pkg/testutils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	*testutils.Ledger
	gateway *depositsvc.Gateway
	set     *account.Set
	funder  uuid.UUID
}

func newFixture(t *testing.T, rules ...string) *fixture {
	t.Helper()
	l := testutils.NewLedger(t, rules...)
	set := l.Onboard(t)
	authorizer := authz.NewLinkAuthorizer(l.Uow, l.Logger)
	funder := uuid.New()
	require.NoError(t, authorizer.Link(context.Background(), funder, set.Main.DependentID))
	gateway := depositsvc.NewGateway(l.Uow, l.Accounts, l.Ledger, l.Distribution, authorizer, nil, l.Bus, l.Metrics, l.Logger)
	return &fixture{Ledger: l, gateway: gateway, set: set, funder: funder}
}

func (f *fixture) confirm(reference, amount string) (deposit.Result, error) {
	return f.gateway.Confirm(context.Background(), depositsvc.ConfirmCommand{
		PaymentReference:   reference,
		DependentAccountID: f.set.Main.ID,
		Amount:             decimal.RequireFromString(amount),
		Currency:           "USD",
		FunderID:           f.funder,
	})
}

func (f *fixture) balances(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, a := range f.set.All() {
		out[a.Label()] = f.Balance(t, a.ID).String()
	}
	return out
}

func (f *fixture) entryCount(t *testing.T) int {
	t.Helper()
	repo, err := f.Uow.LedgerRepository()
	require.NoError(t, err)
	n, err := repo.Count(context.Background(), repository.LedgerFilter{DependentID: f.set.Main.DependentID})
	require.NoError(t, err)
	return int(n)
}

func TestConfirm_DepositIsDistributed(t *testing.T) {
	f := newFixture(t)

	result, err := f.confirm("pi_1000", "1000")
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusApplied, result.Status)
	require.NotNil(t, result.LedgerEntryID)
	require.NotNil(t, result.NewBalance)
	assert.True(t, result.NewBalance.IsZero())
	require.NotNil(t, result.Distribution)
	assert.Equal(t, 5, result.Distribution.EntryCount)
	assert.Empty(t, result.Distribution.Error)

	assert.Equal(t, map[string]string{
		"main":          "0",
		"healthcare":    "250",
		"groceries":     "300",
		"education":     "200",
		"clothing":      "0",
		"baby-care":     "0",
		"entertainment": "0",
		"pregnancy":     "0",
		"other":         "250",
	}, f.balances(t))
	assert.Equal(t, 6, f.entryCount(t))

	entries, err := f.Ledger.Ledger.FindByReference(context.Background(), "pi_1000")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, *result.LedgerEntryID, entries[0].ID)
	require.NotNil(t, entries[0].Metadata.Deposit)
	assert.Equal(t, f.funder, entries[0].Metadata.Deposit.FunderID)

	assert.Len(t, f.Bus.PublishedOf(events.EventTypeDepositApplied.String()), 1)
	assert.Len(t, f.Bus.PublishedOf(events.EventTypeDistributionApplied.String()), 1)
}

func TestConfirm_ReplayReturnsAlreadyApplied(t *testing.T) {
	f := newFixture(t)

	first, err := f.confirm("pi_2", "1000")
	require.NoError(t, err)
	before := f.balances(t)

	second, err := f.confirm("pi_2", "1000")
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusAlreadyApplied, second.Status)
	assert.Equal(t, *first.LedgerEntryID, *second.LedgerEntryID)
	assert.True(t, first.NewBalance.Equal(*second.NewBalance))
	assert.Equal(t, before, f.balances(t))
	assert.Equal(t, 6, f.entryCount(t))
	assert.Len(t, f.Bus.PublishedOf(events.EventTypeDepositApplied.String()), 1)
}

func TestConfirm_ConcurrentDuplicatesCreditOnce(t *testing.T) {
	f := newFixture(t)

	statuses := make(chan deposit.Status, 16)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.confirm("pi_race", "400")
			if assert.NoError(t, err) {
				statuses <- result.Status
			}
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[deposit.Status]int{}
	for s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[deposit.StatusApplied])
	assert.Equal(t, 15, counts[deposit.StatusAlreadyApplied])

	total := decimal.Zero
	for _, a := range f.set.All() {
		total = total.Add(f.Balance(t, a.ID))
	}
	assert.True(t, total.Equal(decimal.NewFromInt(400)))
}

func TestConfirm_UnauthorizedFunderIsRejected(t *testing.T) {
	f := newFixture(t)
	stranger := uuid.New()

	cmd := depositsvc.ConfirmCommand{
		PaymentReference:   "pi_bad",
		DependentAccountID: f.set.Main.DependentID,
		Amount:             decimal.NewFromInt(50),
		FunderID:           stranger,
	}
	result, err := f.gateway.Confirm(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	assert.Equal(t, deposit.StatusRejected, result.Status)
	assert.True(t, f.Balance(t, f.set.Main.ID).IsZero())

	// A repeat by the same stranger is rejected again without a second record.
	result, err = f.gateway.Confirm(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	assert.Equal(t, deposit.StatusRejected, result.Status)

	rejections, err := f.gateway.Rejections(context.Background(), "pi_bad")
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, deposit.StateRejected, rejections[0].State)
	assert.Equal(t, stranger, rejections[0].FunderID)
	assert.Len(t, f.Bus.PublishedOf(events.EventTypeDepositRejected.String()), 1)

	_, err = f.gateway.Get(context.Background(), "pi_bad")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirm_RejectedAttemptDoesNotBlockLinkedFunder(t *testing.T) {
	f := newFixture(t)
	cmd := depositsvc.ConfirmCommand{
		PaymentReference:   "pi_contested",
		DependentAccountID: f.set.Main.ID,
		Amount:             decimal.NewFromInt(100),
		FunderID:           uuid.New(),
	}
	_, err := f.gateway.Confirm(context.Background(), cmd)
	require.ErrorIs(t, err, domain.ErrAuthorization)

	cmd.FunderID = f.funder
	result, err := f.gateway.Confirm(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusApplied, result.Status)

	stored, err := f.gateway.Get(context.Background(), "pi_contested")
	require.NoError(t, err)
	assert.Equal(t, deposit.StateApplied, stored.State)
	assert.Equal(t, f.funder, stored.FunderID)

	total := decimal.Zero
	for _, a := range f.set.All() {
		total = total.Add(f.Balance(t, a.ID))
	}
	assert.True(t, total.Equal(decimal.NewFromInt(100)))
}

func TestConfirm_ReusedReferenceForAnotherDependentConflicts(t *testing.T) {
	f := newFixture(t)
	applied, err := f.confirm("pi_shared", "300")
	require.NoError(t, err)
	require.NotNil(t, applied.LedgerEntryID)

	other := f.Onboard(t)
	otherFunder := uuid.New()
	authorizer := authz.NewLinkAuthorizer(f.Uow, f.Logger)
	require.NoError(t, authorizer.Link(context.Background(), otherFunder, other.Main.DependentID))

	result, err := f.gateway.Confirm(context.Background(), depositsvc.ConfirmCommand{
		PaymentReference:   "pi_shared",
		DependentAccountID: other.Main.ID,
		Amount:             decimal.NewFromInt(300),
		FunderID:           otherFunder,
	})
	require.ErrorIs(t, err, domain.ErrReferenceConflict)
	assert.Empty(t, result.Status)
	assert.Nil(t, result.LedgerEntryID)
	assert.Nil(t, result.NewBalance)
	assert.True(t, f.Balance(t, other.Main.ID).IsZero())

	// Same dependent and funder but a different amount is also a conflict.
	_, err = f.confirm("pi_shared", "301")
	require.ErrorIs(t, err, domain.ErrReferenceConflict)

	replay, err := f.confirm("pi_shared", "300")
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusAlreadyApplied, replay.Status)
}

func TestConfirm_DerivedReferenceIsNotAPaymentReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.confirm("pi_A", "1000")
	require.NoError(t, err)
	before := f.balances(t)
	entries := f.entryCount(t)

	for _, ref := range []string{
		ledger.DistributionRef("pi_A"),
		ledger.AllocationRef("pi_A", string(account.CategoryHealthcare)),
		ledger.ReversalRef("pi_A"),
		"transfer_1",
	} {
		result, err := f.confirm(ref, "500")
		assert.ErrorIs(t, err, domain.ErrValidation, ref)
		assert.Empty(t, result.Status, ref)
	}
	assert.Equal(t, before, f.balances(t))
	assert.Equal(t, entries, f.entryCount(t))
	assert.Len(t, f.Bus.PublishedOf(events.EventTypeDepositApplied.String()), 1)
}

func TestConfirm_CaregiverIsAuthorized(t *testing.T) {
	f := newFixture(t)
	result, err := f.gateway.Confirm(context.Background(), depositsvc.ConfirmCommand{
		PaymentReference:   "pi_cg",
		DependentAccountID: f.set.Main.DependentID,
		Amount:             decimal.NewFromInt(10),
		FunderID:           *f.set.Main.CaregiverID,
	})
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusApplied, result.Status)
}

func TestConfirm_InvalidInput(t *testing.T) {
	f := newFixture(t)
	sub := testutils.Sub(t, f.set, account.CategoryHealthcare)

	tests := []struct {
		name string
		cmd  depositsvc.ConfirmCommand
		want error
	}{
		{"missing reference", depositsvc.ConfirmCommand{DependentAccountID: f.set.Main.ID, Amount: decimal.NewFromInt(1), FunderID: f.funder}, domain.ErrMissingReference},
		{"missing funder", depositsvc.ConfirmCommand{PaymentReference: "p", DependentAccountID: f.set.Main.ID, Amount: decimal.NewFromInt(1)}, domain.ErrValidation},
		{"zero amount", depositsvc.ConfirmCommand{PaymentReference: "p", DependentAccountID: f.set.Main.ID, Amount: decimal.Zero, FunderID: f.funder}, domain.ErrInvalidAmount},
		{"currency mismatch", depositsvc.ConfirmCommand{PaymentReference: "p", DependentAccountID: f.set.Main.ID, Amount: decimal.NewFromInt(1), Currency: "EUR", FunderID: f.funder}, domain.ErrCurrencyMismatch},
		{"unknown dependent", depositsvc.ConfirmCommand{PaymentReference: "p", DependentAccountID: uuid.New(), Amount: decimal.NewFromInt(1), FunderID: f.funder}, domain.ErrAccountNotFound},
		{"sub-account target", depositsvc.ConfirmCommand{PaymentReference: "p", DependentAccountID: sub.ID, Amount: decimal.NewFromInt(1), FunderID: f.funder}, domain.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.gateway.Confirm(context.Background(), tc.cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, f.entryCount(t))
}

func TestConfirm_DistributionFailureKeepsDeposit(t *testing.T) {
	f := newFixture(t, "healthcare:30,groceries:70")
	groceries := testutils.Sub(t, f.set, account.CategoryGroceries)
	require.NoError(t, f.Accounts.SetStatus(context.Background(), groceries.ID, account.StatusFrozen))

	result, err := f.confirm("pi_frozen", "500")
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusApplied, result.Status)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, result.Distribution)
	assert.NotEmpty(t, result.Distribution.Error)

	assert.True(t, f.Balance(t, f.set.Main.ID).Equal(decimal.NewFromInt(500)))
	for _, sub := range f.set.Subs {
		assert.True(t, f.Balance(t, sub.ID).IsZero())
	}
	stored, err := f.gateway.Get(context.Background(), "pi_frozen")
	require.NoError(t, err)
	assert.Contains(t, stored.DistributionError, "groceries")

	failed := f.Bus.PublishedOf(events.EventTypeDistributionFailed.String())
	require.Len(t, failed, 1)
	assert.Equal(t, groceries.ID, failed[0].(events.DistributionFailed).AccountID)

	// Unfreezing and retrying completes the distribution exactly once.
	require.NoError(t, f.Accounts.SetStatus(context.Background(), groceries.ID, account.StatusActive))
	retried, err := f.gateway.RetryDistribution(context.Background(), "pi_frozen")
	require.NoError(t, err)
	assert.False(t, retried.AlreadyDistributed)
	assert.True(t, f.Balance(t, f.set.Main.ID).IsZero())
	assert.True(t, f.Balance(t, groceries.ID).Equal(decimal.NewFromInt(350)))

	stored, err = f.gateway.Get(context.Background(), "pi_frozen")
	require.NoError(t, err)
	assert.Empty(t, stored.DistributionError)
	assert.True(t, stored.NewBalance.IsZero())

	again, err := f.gateway.RetryDistribution(context.Background(), "pi_frozen")
	require.NoError(t, err)
	assert.True(t, again.AlreadyDistributed)
	assert.True(t, f.Balance(t, groceries.ID).Equal(decimal.NewFromInt(350)))

	exists, err := f.Ledger.Ledger.ExistsByReference(context.Background(), ledger.DistributionRef("pi_frozen"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRetryDistribution_RequiresAppliedConfirmation(t *testing.T) {
	f := newFixture(t)
	_, err := f.gateway.RetryDistribution(context.Background(), "pi_unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
