package payout_test

import (
	"context"
	"sync"
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	payoutsvc "github.com/amirasaad/carefund/pkg/service/payout"
	"github.com/amirasaad/carefund/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayouts(t *testing.T) (*payoutsvc.Service, *testutils.Ledger, *account.Set) {
	t.Helper()
	l := testutils.NewLedger(t)
	set := l.Onboard(t)
	svc := payoutsvc.NewService(l.Uow, l.Accounts, l.Ledger, l.Bus, l.Metrics, l.Logger)
	return svc, l, set
}

func TestPayout(t *testing.T) {
	svc, l, set := newPayouts(t)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	l.Fund(t, healthcare.ID, "120")

	result, err := svc.Payout(context.Background(), payoutsvc.PayoutCommand{
		AccountID: healthcare.ID,
		Amount:    decimal.NewFromInt(45),
		Merchant:  "City Pharmacy",
		Reference: "rx-991",
	})
	require.NoError(t, err)
	assert.Equal(t, "PAYOUT_rx-991", result.Reference)
	assert.Equal(t, ledger.Debit, result.Entry.Type)
	assert.True(t, result.Entry.BalanceAfter.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, "Payout to City Pharmacy", result.Entry.Description)
	require.NotNil(t, result.Entry.Metadata.Payout)
	assert.Equal(t, "City Pharmacy", result.Entry.Metadata.Payout.Merchant)
	assert.Len(t, l.Bus.PublishedOf(events.EventTypePayoutCompleted.String()), 1)

	again, err := svc.Payout(context.Background(), payoutsvc.PayoutCommand{
		AccountID: healthcare.ID,
		Amount:    decimal.NewFromInt(45),
		Merchant:  "City Pharmacy",
		Reference: "PAYOUT_rx-991",
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, result.Entry.ID, again.Entry.ID)
	assert.True(t, l.Balance(t, healthcare.ID).Equal(decimal.NewFromInt(75)))
	assert.Len(t, l.Bus.PublishedOf(events.EventTypePayoutCompleted.String()), 1)
}

func TestPayout_Rejections(t *testing.T) {
	svc, l, set := newPayouts(t)
	groceries := testutils.Sub(t, set, account.CategoryGroceries)
	l.Fund(t, groceries.ID, "10")
	l.Fund(t, set.Main.ID, "10")

	tests := []struct {
		name string
		cmd  payoutsvc.PayoutCommand
		want error
	}{
		{"zero amount", payoutsvc.PayoutCommand{AccountID: groceries.ID, Amount: decimal.Zero, Merchant: "m"}, domain.ErrInvalidAmount},
		{"no merchant", payoutsvc.PayoutCommand{AccountID: groceries.ID, Amount: decimal.NewFromInt(1)}, domain.ErrValidation},
		{"main account", payoutsvc.PayoutCommand{AccountID: set.Main.ID, Amount: decimal.NewFromInt(1), Merchant: "m"}, domain.ErrNotSubAccount},
		{"overdraw", payoutsvc.PayoutCommand{AccountID: groceries.ID, Amount: decimal.NewFromInt(11), Merchant: "m"}, domain.ErrInsufficientFunds},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Payout(context.Background(), tc.cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.True(t, l.Balance(t, groceries.ID).Equal(decimal.NewFromInt(10)))
}

func TestPayout_ReferenceOnOtherAccount(t *testing.T) {
	svc, l, set := newPayouts(t)
	healthcare := testutils.Sub(t, set, account.CategoryHealthcare)
	education := testutils.Sub(t, set, account.CategoryEducation)
	l.Fund(t, healthcare.ID, "10")
	l.Fund(t, education.ID, "10")

	_, err := svc.Payout(context.Background(), payoutsvc.PayoutCommand{AccountID: healthcare.ID, Amount: decimal.NewFromInt(1), Merchant: "m", Reference: "x"})
	require.NoError(t, err)
	_, err = svc.Payout(context.Background(), payoutsvc.PayoutCommand{AccountID: education.ID, Amount: decimal.NewFromInt(1), Merchant: "m", Reference: "x"})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestPayout_ConcurrentSameReference(t *testing.T) {
	svc, l, set := newPayouts(t)
	other := testutils.Sub(t, set, account.CategoryOther)
	l.Fund(t, other.ID, "100")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Payout(context.Background(), payoutsvc.PayoutCommand{
				AccountID: other.ID,
				Amount:    decimal.NewFromInt(30),
				Merchant:  "School",
				Reference: "fees-1",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.True(t, l.Balance(t, other.ID).Equal(decimal.NewFromInt(70)))
}
