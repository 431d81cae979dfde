package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/pkg/cache"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/sony/gobreaker"
)

// BreakerCache guards a remote cache with a circuit breaker. While the
// breaker is open every call fails fast and callers fall back to storage.
type BreakerCache struct {
	inner   cache.RuleCache
	breaker *gobreaker.CircuitBreaker
}

type getResult struct {
	rules allocation.RuleSet
	found bool
}

// NewBreakerCache trips after consecutiveFailures failed calls and probes
// again after openTimeout.
func NewBreakerCache(
	inner cache.RuleCache,
	name string,
	consecutiveFailures uint32,
	openTimeout time.Duration,
	logger *slog.Logger,
) *BreakerCache {
	logger = logger.With("breaker", name)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}
	return &BreakerCache{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerCache) Get(ctx context.Context, key string) (allocation.RuleSet, bool, error) {
	v, err := b.breaker.Execute(func() (interface{}, error) {
		rules, found, err := b.inner.Get(ctx, key)
		return getResult{rules: rules, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(getResult)
	return res.rules, res.found, nil
}

func (b *BreakerCache) Set(ctx context.Context, key string, rules allocation.RuleSet, ttl time.Duration) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.Set(ctx, key, rules, ttl)
	})
	return err
}

func (b *BreakerCache) Delete(ctx context.Context, key string) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.Delete(ctx, key)
	})
	return err
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerCache) State() string {
	return b.breaker.State().String()
}

var _ cache.RuleCache = (*BreakerCache)(nil)
