package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	infracache "github.com/amirasaad/carefund/infra/cache"
	infraeventbus "github.com/amirasaad/carefund/infra/eventbus"
	"github.com/amirasaad/carefund/infra/repository/memory"
	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/amirasaad/carefund/pkg/metrics"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	depositsvc "github.com/amirasaad/carefund/pkg/service/deposit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(cfg *config.App) *config.Deps {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &config.Deps{
		Uow:       memory.NewUoW(),
		EventBus:  infraeventbus.NewWithMemory(logger),
		RuleCache: infracache.NewMemoryCache(),
		Locker:    lock.Noop{},
		Metrics:   metrics.New(),
		Logger:    logger,
		Config:    cfg,
	}
}

func testConfig() *config.App {
	return &config.App{
		Auth:       &config.Auth{Jwt: &config.Jwt{Secret: "s3cret"}},
		Ledger:     &config.Ledger{Currency: "USD", Categories: []string{"healthcare", "groceries", "other"}},
		Allocation: &config.Allocation{Default: "healthcare:50,groceries:50"},
	}
}

func TestNew_WiresAnEndToEndDeposit(t *testing.T) {
	a, err := New(testDeps(testConfig()))
	require.NoError(t, err)
	ctx := context.Background()

	caregiver := uuid.New()
	set, err := a.AccountService.CreateDependentAccountSet(ctx, accountsvc.OnboardCommand{
		DependentID: uuid.New(),
		CaregiverID: caregiver,
	})
	require.NoError(t, err)
	assert.Len(t, set.Subs, 3)

	res, err := a.DepositGateway.Confirm(ctx, depositsvc.ConfirmCommand{
		PaymentReference:   "pi_app_1",
		DependentAccountID: set.Main.ID,
		Amount:             decimal.RequireFromString("80"),
		Currency:           "USD",
		FunderID:           caregiver,
	})
	require.NoError(t, err)
	assert.Equal(t, deposit.StatusApplied, res.Status)

	balances, err := a.ReportService.CategoryBalances(ctx, set.Main.DependentID)
	require.NoError(t, err)
	assert.Equal(t, "80", balances.Total.String())
}

func TestNew_RejectsBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.App)
	}{
		{"unknown category", func(c *config.App) { c.Ledger.Categories = []string{"toys"} }},
		{"bad currency", func(c *config.App) { c.Ledger.Currency = "dollars" }},
		{"rules over 100", func(c *config.App) { c.Allocation.Default = "healthcare:80,groceries:30" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			_, err := New(testDeps(cfg))
			assert.Error(t, err)
		})
	}
}
