package transfer_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	transfersvc "github.com/amirasaad/carefund/pkg/service/transfer"
	"github.com/amirasaad/carefund/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfers(t *testing.T) (*transfersvc.Service, *testutils.Ledger, *account.Set) {
	t.Helper()
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	return transfersvc.NewService(l.Uow, l.Accounts, l.Ledger, l.Bus, l.Metrics, l.Logger), l, set
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTransfer(t *testing.T) {
	svc, l, set := newTransfers(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	l.Fund(t, groceries.ID, "300")
	l.Fund(t, healthcare.ID, "20")

	result, err := svc.Transfer(context.Background(), transfersvc.TransferCommand{
		FromAccountID: groceries.ID,
		ToAccountID:   healthcare.ID,
		Amount:        dec("50"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Reference, "TRANSFER_"))
	assert.Equal(t, result.Reference, result.Outgoing.Reference)
	assert.Equal(t, result.Reference, result.Incoming.Reference)
	assert.Equal(t, "Outgoing transfer to healthcare", result.Outgoing.Description)
	assert.Equal(t, "Incoming transfer from groceries", result.Incoming.Description)
	assert.True(t, result.Outgoing.BalanceAfter.Equal(dec("250")))
	assert.True(t, result.Incoming.BalanceAfter.Equal(dec("70")))
	require.NotNil(t, result.Outgoing.Metadata.Transfer)
	assert.Equal(t, healthcare.ID, result.Outgoing.Metadata.Transfer.CounterpartAccountID)

	assert.True(t, l.Balance(t, groceries.ID).Equal(dec("250")))
	assert.True(t, l.Balance(t, healthcare.ID).Equal(dec("70")))
	assert.Len(t, l.Bus.PublishedOf(events.EventTypeTransferCompleted.String()), 1)
}

func TestTransfer_Rejections(t *testing.T) {
	svc, l, set := newTransfers(t)
	other := l.Onboard(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	foreign := testutils.Sub(t, other, account.CategoryHealthcare)
	l.Fund(t, groceries.ID, "100")
	l.Fund(t, set.Main.ID, "100")

	tests := []struct {
		name     string
		from, to *account.Account
		amount   string
		want     error
	}{
		{"zero amount", groceries, healthcare, "0", domain.ErrInvalidAmount},
		{"negative amount", groceries, healthcare, "-5", domain.ErrInvalidAmount},
		{"same account", groceries, groceries, "5", domain.ErrSameCategory},
		{"main account source", set.Main, healthcare, "5", domain.ErrNotSubAccount},
		{"other dependent", groceries, foreign, "5", domain.ErrDifferentDependent},
		{"insufficient funds", groceries, healthcare, "100.01", domain.ErrInsufficientFunds},
		{"too precise", groceries, healthcare, "1.001", domain.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Transfer(context.Background(), transfersvc.TransferCommand{
				FromAccountID: tc.from.ID,
				ToAccountID:   tc.to.ID,
				Amount:        dec(tc.amount),
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.True(t, l.Balance(t, groceries.ID).Equal(dec("100")))
	assert.True(t, l.Balance(t, healthcare.ID).IsZero())
	assert.Empty(t, l.Bus.PublishedOf(events.EventTypeTransferCompleted.String()))
}

func TestTransfer_FrozenDestinationLeavesSourceUntouched(t *testing.T) {
	svc, l, set := newTransfers(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	education := testutils.Sub(t, set, account.CategoryEducation)
	l.Fund(t, groceries.ID, "100")
	require.NoError(t, l.Accounts.SetStatus(context.Background(), education.ID, account.StatusFrozen))

	_, err := svc.Transfer(context.Background(), transfersvc.TransferCommand{
		FromAccountID: groceries.ID,
		ToAccountID:   education.ID,
		Amount:        dec("40"),
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)
	assert.True(t, l.Balance(t, groceries.ID).Equal(dec("100")))
	assert.Len(t, l.Entries(t, groceries.ID), 1)
}

func TestTransfer_IdempotencyKey(t *testing.T) {
	svc, l, set := newTransfers(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	l.Fund(t, groceries.ID, "100")

	cmd := transfersvc.TransferCommand{
		FromAccountID:  groceries.ID,
		ToAccountID:    healthcare.ID,
		Amount:         dec("10"),
		IdempotencyKey: "key-1",
	}
	var replays atomic.Int32
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Transfer(context.Background(), cmd)
			if assert.NoError(t, err) {
				assert.Equal(t, "TRANSFER_key-1", result.Reference)
				if result.Replayed {
					replays.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), replays.Load())
	assert.True(t, l.Balance(t, groceries.ID).Equal(dec("90")))
	assert.True(t, l.Balance(t, healthcare.ID).Equal(dec("10")))

	cmd.ToAccountID = testutils.Sub(t, set, account.CategoryOther).ID
	_, err := svc.Transfer(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	svc, l, set := newTransfers(t)
	a := testutils.Sub(t, set, account.CategoryGroceries)
	b := testutils.Sub(t, set, account.CategoryClothing)
	l.Fund(t, a.ID, "100")
	l.Fund(t, b.ID, "100")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			_, err := svc.Transfer(context.Background(), transfersvc.TransferCommand{
				FromAccountID: from.ID,
				ToAccountID:   to.ID,
				Amount:        dec("7"),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	total := l.Balance(t, a.ID).Add(l.Balance(t, b.ID))
	assert.True(t, total.Equal(dec("200")))
	assert.True(t, l.Balance(t, a.ID).Equal(dec("100")))
}

func TestReverse(t *testing.T) {
	svc, l, set := newTransfers(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	l.Fund(t, groceries.ID, "100")

	original, err := svc.Transfer(context.Background(), transfersvc.TransferCommand{
		FromAccountID: groceries.ID,
		ToAccountID:   healthcare.ID,
		Amount:        dec("25"),
	})
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), original.Reference, "entered in error")
	require.NoError(t, err)
	assert.Equal(t, ledger.ReversalRef(original.Reference), reversal.Reference)
	assert.Equal(t, healthcare.ID, reversal.Outgoing.AccountID)
	assert.Equal(t, groceries.ID, reversal.Incoming.AccountID)
	require.NotNil(t, reversal.Outgoing.Metadata.Reversal)
	assert.Equal(t, "entered in error", reversal.Outgoing.Metadata.Reversal.Reason)
	assert.True(t, l.Balance(t, groceries.ID).Equal(dec("100")))
	assert.True(t, l.Balance(t, healthcare.ID).IsZero())

	again, err := svc.Reverse(context.Background(), original.Reference, "again")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, reversal.Outgoing.ID, again.Outgoing.ID)
	assert.Len(t, l.Bus.PublishedOf(events.EventTypeReversalCompleted.String()), 1)
}

func TestReverse_Rejections(t *testing.T) {
	svc, l, set := newTransfers(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	l.Fund(t, groceries.ID, "100")

	_, err := svc.Reverse(context.Background(), "PAY-1", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Reverse(context.Background(), "TRANSFER_missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	original, err := svc.Transfer(context.Background(), transfersvc.TransferCommand{
		FromAccountID: groceries.ID,
		ToAccountID:   healthcare.ID,
		Amount:        dec("25"),
	})
	require.NoError(t, err)
	require.NoError(t, l.Accounts.SetStatus(context.Background(), healthcare.ID, account.StatusFrozen))
	_, err = svc.Reverse(context.Background(), original.Reference, "")
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)
}
