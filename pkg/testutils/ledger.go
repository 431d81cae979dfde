package testutils

import (
	"context"
	"io"
	"log/slog"
	"testing"

	infracache "github.com/amirasaad/carefund/infra/cache"
	infraeventbus "github.com/amirasaad/carefund/infra/eventbus"
	"github.com/amirasaad/carefund/infra/repository/memory"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/metrics"
	"github.com/amirasaad/carefund/pkg/repository"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	allocationsvc "github.com/amirasaad/carefund/pkg/service/allocation"
	distributionsvc "github.com/amirasaad/carefund/pkg/service/distribution"
	ledgersvc "github.com/amirasaad/carefund/pkg/service/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Ledger wires the core services over a unit of work, the in-memory store
// unless built with NewLedgerWithUoW.
type Ledger struct {
	Uow          repository.UnitOfWork
	Bus          *infraeventbus.MemoryEventBus
	Metrics      *metrics.Recorder
	Logger       *slog.Logger
	Accounts     *accountsvc.Service
	Ledger       *ledgersvc.Service
	Rules        *allocationsvc.Provider
	Distribution *distributionsvc.Service
}

// DefaultRules is the allocation table used by NewLedger.
const DefaultRules = "healthcare:25,groceries:30,education:20,other:25"

// NewLedger builds a fixture whose default allocation is defaults, or
// DefaultRules when defaults is empty.
func NewLedger(tb testing.TB, defaults ...string) *Ledger {
	tb.Helper()
	return NewLedgerWithUoW(tb, memory.NewUoW(), defaults...)
}

// NewLedgerWithUoW is NewLedger over the given storage.
func NewLedgerWithUoW(tb testing.TB, uow repository.UnitOfWork, defaults ...string) *Ledger {
	tb.Helper()
	table := DefaultRules
	if len(defaults) > 0 {
		table = defaults[0]
	}
	rules, err := allocation.ParseRuleSet(table)
	require.NoError(tb, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ruleCache := infracache.NewMemoryCache()
	tb.Cleanup(ruleCache.Close)

	l := &Ledger{
		Uow:     uow,
		Bus:     infraeventbus.NewWithMemory(logger),
		Metrics: metrics.New(),
		Logger:  logger,
	}
	l.Accounts = accountsvc.NewService(uow, logger, nil, money.DefaultCurrency)
	l.Ledger = ledgersvc.NewService(uow, l.Accounts, logger)
	l.Rules, err = allocationsvc.NewProvider(uow, ruleCache, rules, 0, logger)
	require.NoError(tb, err)
	l.Distribution = distributionsvc.NewService(uow, l.Accounts, l.Ledger, l.Rules, l.Bus, l.Metrics, logger)
	return l
}

// Onboard creates a dependent with the given categories, or all of them.
func (l *Ledger) Onboard(tb testing.TB, categories ...account.Category) *account.Set {
	tb.Helper()
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}
	set, err := l.Accounts.CreateDependentAccountSet(context.Background(), accountsvc.OnboardCommand{
		DependentID: uuid.New(),
		CaregiverID: uuid.New(),
		Categories:  names,
	})
	require.NoError(tb, err)
	return set
}

// Fund credits an account directly under a fresh reference.
func (l *Ledger) Fund(tb testing.TB, accountID uuid.UUID, amount string) *ledger.Entry {
	tb.Helper()
	var entry *ledger.Entry
	err := l.Uow.Do(context.Background(), func(tx repository.UnitOfWork) error {
		var err error
		entry, err = l.Ledger.Post(context.Background(), tx, ledgersvc.PostCommand{
			AccountID:   accountID,
			Amount:      decimal.RequireFromString(amount),
			Reference:   "FUND_" + uuid.NewString(),
			Description: "test funding",
		})
		return err
	})
	require.NoError(tb, err)
	return entry
}

// Balance reads an account's stored balance.
func (l *Ledger) Balance(tb testing.TB, accountID uuid.UUID) decimal.Decimal {
	tb.Helper()
	acct, err := l.Accounts.Get(context.Background(), accountID)
	require.NoError(tb, err)
	return acct.Balance
}

// Entries lists every entry of an account, oldest first.
func (l *Ledger) Entries(tb testing.TB, accountID uuid.UUID) []*ledger.Entry {
	tb.Helper()
	repo, err := l.Uow.LedgerRepository()
	require.NoError(tb, err)
	entries, err := repo.List(context.Background(), repository.LedgerFilter{AccountID: accountID, Ascending: true})
	require.NoError(tb, err)
	return entries
}

// Sub returns the set's sub-account for category.
func Sub(tb testing.TB, set *account.Set, category account.Category) *account.Account {
	tb.Helper()
	sub, ok := set.Sub(category)
	require.True(tb, ok, "no %s sub-account", category)
	return sub
}
