package distribution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	distributionsvc "github.com/amirasaad/carefund/pkg/service/distribution"
	"github.com/amirasaad/carefund/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func distribute(
	t *testing.T,
	l *testutils.Ledger,
	set *account.Set,
	amount, reference string,
) (*distributionsvc.Result, error) {
	t.Helper()
	var result *distributionsvc.Result
	err := l.Uow.Do(context.Background(), func(tx repository.UnitOfWork) error {
		var err error
		result, err = l.Distribution.Distribute(context.Background(), tx, distributionsvc.DistributeCommand{
			MainAccountID: set.Main.ID,
			Amount:        dec(amount),
			Reference:     reference,
		})
		return err
	})
	return result, err
}

func TestDistribute_SplitsAcrossCategories(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "1000")

	result, err := distribute(t, l, set, "1000", "PAY-1")
	require.NoError(t, err)
	require.NotNil(t, result.MainEntry)
	assert.Len(t, result.Entries(), 5)
	assert.True(t, result.Plan.Distributed.Equal(dec("1000")))
	assert.True(t, result.Plan.Remainder.IsZero())

	assert.True(t, l.Balance(t, set.Main.ID).IsZero())
	want := map[account.Category]string{
		account.CategoryHealthcare: "250",
		account.CategoryGroceries:  "300",
		account.CategoryEducation:  "200",
		account.CategoryOther:      "250",
		account.CategoryClothing:   "0",
	}
	for category, amount := range want {
		sub := testutils.Sub(t, set, category)
		assert.True(t, l.Balance(t, sub.ID).Equal(dec(amount)), "%s balance", category)
	}

	assert.Equal(t, ledger.DistributionRef("PAY-1"), result.MainEntry.Reference)
	assert.True(t, result.MainEntry.Amount.Equal(dec("-1000")))
	for _, credit := range result.Credits {
		assert.Equal(t, ledger.AllocationRef("PAY-1", credit.Category), credit.Reference)
		assert.Equal(t, ledger.Credit, credit.Type)
		require.NotNil(t, credit.Metadata.Allocation)
		assert.Equal(t, "PAY-1", credit.Metadata.Allocation.SourceReference)
	}
}

func TestDistribute_IsIdempotentByReference(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "2000")

	first, err := distribute(t, l, set, "1000", "PAY-2")
	require.NoError(t, err)
	second, err := distribute(t, l, set, "1000", "PAY-2")
	require.NoError(t, err)

	assert.True(t, second.AlreadyDistributed)
	assert.Len(t, second.Credits, len(first.Credits))
	assert.True(t, second.Plan.Distributed.Equal(first.Plan.Distributed))
	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("1000")))
	assert.Len(t, l.Entries(t, set.Main.ID), 2)
}

func TestDistribute_FrozenSubAccountRollsBackEverything(t *testing.T) {
	l := testutils.NewLedger(t, "healthcare:30,groceries:70")
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "500")
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	require.NoError(t, l.Accounts.SetStatus(context.Background(), groceries.ID, account.StatusFrozen))

	_, err := distribute(t, l, set, "500", "PAY-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialDistribution)
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)

	var pde *domain.PartialDistributionError
	require.True(t, errors.As(err, &pde))
	assert.Equal(t, groceries.ID, pde.AccountID)
	assert.Equal(t, string(account.CategoryGroceries), pde.Category)
	assert.Equal(t, "PAY-3", pde.Reference)

	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("500")))
	for _, sub := range set.Subs {
		assert.True(t, l.Balance(t, sub.ID).IsZero(), "%s balance", sub.Category)
		assert.Empty(t, l.Entries(t, sub.ID))
	}
	exists, err := l.Ledger.ExistsByReference(context.Background(), ledger.DistributionRef("PAY-3"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDistribute_RemainderStaysOnMain(t *testing.T) {
	l := testutils.NewLedger(t, "healthcare:33.33")
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "100")

	result, err := distribute(t, l, set, "100", "PAY-4")
	require.NoError(t, err)
	assert.True(t, result.Plan.Distributed.Equal(dec("33.33")))
	assert.True(t, result.Plan.Remainder.Equal(dec("66.67")))
	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("66.67")))
	require.NotNil(t, result.MainEntry.Metadata.Allocation)
	assert.True(t, result.MainEntry.Metadata.Allocation.Remainder.Equal(dec("66.67")))
}

func TestDistribute_NeverExceedsAmount(t *testing.T) {
	l := testutils.NewLedger(t, "healthcare:50,groceries:50")
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "0.03")

	result, err := distribute(t, l, set, "0.03", "PAY-5")
	require.NoError(t, err)
	sum := decimal.Zero
	for _, credit := range result.Credits {
		sum = sum.Add(credit.Amount)
	}
	assert.True(t, sum.Equal(result.Plan.Distributed))
	assert.True(t, sum.LessThanOrEqual(dec("0.03")))
	assert.False(t, l.Balance(t, set.Main.ID).IsNegative())
}

func TestDistribute_MissingSubAccount(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t, account.CategoryHealthcare)
	l.Fund(t, set.Main.ID, "100")

	_, err := distribute(t, l, set, "100", "PAY-6")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialDistribution)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("100")))
}

func TestDistribute_EmptyTableWritesNothing(t *testing.T) {
	l := testutils.NewLedger(t, "")
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "100")

	result, err := distribute(t, l, set, "100", "PAY-7")
	require.NoError(t, err)
	assert.Nil(t, result.MainEntry)
	assert.Empty(t, result.Entries())
	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("100")))
}

func TestDistribute_DependentTableOnColdCache(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "100")
	rules, err := allocation.ParseRuleSet("clothing:40")
	require.NoError(t, err)
	require.NoError(t, l.Rules.SetRules(context.Background(), set.Main.DependentID, rules))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := distribute(t, l, set, "100", "PAY-COLD")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("first distribution for a dependent did not complete")
	}
	assert.True(t, l.Balance(t, testutils.Sub(t, set, account.CategoryClothing).ID).Equal(dec("40")))
	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("60")))
}

func TestDistribute_RejectsBadInput(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "100")

	_, err := distribute(t, l, set, "0", "PAY-8")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = distribute(t, l, set, "10", "")
	assert.ErrorIs(t, err, domain.ErrMissingReference)

	sub := &account.Set{Main: testutils.Sub(t, set, account.CategoryHealthcare)}
	_, err = distribute(t, l, sub, "10", "PAY-9")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDistribute_InsufficientMainBalance(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "10")

	_, err := distribute(t, l, set, "100", "PAY-10")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.ErrorIs(t, err, domain.ErrPartialDistribution)
	assert.True(t, l.Balance(t, set.Main.ID).Equal(dec("10")))
}

func TestPublish(t *testing.T) {
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	l.Fund(t, set.Main.ID, "100")
	ctx := context.Background()

	result, err := distribute(t, l, set, "100", "PAY-11")
	require.NoError(t, err)
	l.Distribution.Publish(ctx, "PAY-11", set.Main.DependentID, result, nil)

	applied := l.Bus.PublishedOf(events.EventTypeDistributionApplied.String())
	require.Len(t, applied, 1)
	evt := applied[0].(events.DistributionApplied)
	assert.Len(t, evt.Entries, 5)
	assert.Equal(t, "PAY-11", evt.SourceReference)

	l.Distribution.Publish(ctx, "PAY-12", set.Main.DependentID, nil, &domain.PartialDistributionError{
		Reference: "PAY-12",
		Category:  "groceries",
		Err:       domain.ErrAccountNotActive,
	})
	failed := l.Bus.PublishedOf(events.EventTypeDistributionFailed.String())
	require.Len(t, failed, 1)
	assert.Equal(t, "groceries", failed[0].(events.DistributionFailed).Category)

	again, err := distribute(t, l, set, "100", "PAY-11")
	require.NoError(t, err)
	l.Distribution.Publish(ctx, "PAY-11", set.Main.DependentID, again, nil)
	assert.Len(t, l.Bus.PublishedOf(events.EventTypeDistributionApplied.String()), 1)
}
