package allocation_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	infracache "github.com/amirasaad/carefund/infra/cache"
	"github.com/amirasaad/carefund/infra/repository/memory"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/repository"
	allocationsvc "github.com/amirasaad/carefund/pkg/service/allocation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingUoW counts allocation repository reads.
type countingUoW struct {
	*memory.UoW
	reads atomic.Int32
}

func (c *countingUoW) AllocationRepository() (repository.AllocationRepository, error) {
	repo, err := c.UoW.AllocationRepository()
	if err != nil {
		return nil, err
	}
	return &countingRepo{AllocationRepository: repo, reads: &c.reads}, nil
}

type countingRepo struct {
	repository.AllocationRepository
	reads *atomic.Int32
}

func (r *countingRepo) RulesFor(ctx context.Context, dependentID uuid.UUID) (allocation.RuleSet, bool, error) {
	r.reads.Add(1)
	time.Sleep(10 * time.Millisecond)
	return r.AllocationRepository.RulesFor(ctx, dependentID)
}

func mustRules(t *testing.T, s string) allocation.RuleSet {
	t.Helper()
	rules, err := allocation.ParseRuleSet(s)
	require.NoError(t, err)
	return rules
}

func TestProvider_DefaultsAndOverrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := infracache.NewMemoryCache()
	t.Cleanup(c.Close)
	p, err := allocationsvc.NewProvider(memory.NewUoW(), c, mustRules(t, "healthcare:25,groceries:30"), time.Minute, slog.Default())
	require.NoError(t, err)
	dependent := uuid.New()

	rules, err := p.Rules(ctx, nil, dependent)
	require.NoError(t, err)
	assert.Equal(t, "healthcare:25,groceries:30", rules.String())

	require.NoError(t, p.SetRules(ctx, dependent, mustRules(t, "education:100")))
	rules, err = p.Rules(ctx, nil, dependent)
	require.NoError(t, err)
	assert.Equal(t, "education:100", rules.String())

	own, found, err := p.Lookup(ctx, dependent)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "education:100", own.String())

	require.NoError(t, p.SetRules(ctx, dependent, allocation.RuleSet{}))
	rules, err = p.Rules(ctx, nil, dependent)
	require.NoError(t, err)
	assert.Equal(t, "healthcare:25,groceries:30", rules.String())
}

func TestProvider_RejectsInvalidTables(t *testing.T) {
	t.Parallel()
	_, err := allocationsvc.NewProvider(memory.NewUoW(), nil, allocation.RuleSet{
		{Category: "healthcare", Percentage: decimal.NewFromInt(60)},
		{Category: "groceries", Percentage: decimal.NewFromInt(60)},
	}, time.Minute, slog.Default())
	require.ErrorIs(t, err, domain.ErrInvalidAllocation)

	p, err := allocationsvc.NewProvider(memory.NewUoW(), nil, nil, time.Minute, slog.Default())
	require.NoError(t, err)
	err = p.SetRules(context.Background(), uuid.New(), allocation.RuleSet{{Category: "toys"}})
	require.ErrorIs(t, err, domain.ErrInvalidAllocation)

	rules, err := p.Rules(context.Background(), nil, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestProvider_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()
	uow := &countingUoW{UoW: memory.NewUoW()}
	c := infracache.NewMemoryCache()
	t.Cleanup(c.Close)
	p, err := allocationsvc.NewProvider(uow, c, mustRules(t, "other:50"), time.Minute, slog.Default())
	require.NoError(t, err)
	dependent := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rules, err := p.Rules(context.Background(), nil, dependent)
			assert.NoError(t, err)
			assert.Equal(t, "other:50", rules.String())
		}()
	}
	wg.Wait()

	reads := uow.reads.Load()
	assert.Less(t, reads, int32(16))

	_, err = p.Rules(context.Background(), nil, dependent)
	require.NoError(t, err)
	assert.Equal(t, reads, uow.reads.Load())
}

func TestProvider_ReadsThroughOpenUnitOfWork(t *testing.T) {
	t.Parallel()
	uow := memory.NewUoW()
	c := infracache.NewMemoryCache()
	t.Cleanup(c.Close)
	p, err := allocationsvc.NewProvider(uow, c, mustRules(t, "groceries:40"), time.Minute, slog.Default())
	require.NoError(t, err)
	dependent := uuid.New()
	require.NoError(t, p.SetRules(context.Background(), dependent, mustRules(t, "education:10")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan allocation.RuleSet, 1)
	go func() {
		_ = uow.Do(ctx, func(tx repository.UnitOfWork) error {
			rules, err := p.Rules(ctx, tx, dependent)
			assert.NoError(t, err)
			done <- rules
			return err
		})
	}()

	select {
	case rules := <-done:
		assert.Equal(t, "education:10", rules.String())
	case <-ctx.Done():
		t.Fatal("Rules blocked inside an open unit of work")
	}

	cached, err := p.Rules(context.Background(), nil, dependent)
	require.NoError(t, err)
	assert.Equal(t, "education:10", cached.String())
}
