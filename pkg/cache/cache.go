package cache

import (
	"context"
	"time"

	"github.com/amirasaad/carefund/pkg/domain/allocation"
)

// RuleCache caches resolved allocation tables by key. A miss returns
// found == false and no error.
type RuleCache interface {
	Get(ctx context.Context, key string) (rules allocation.RuleSet, found bool, err error)
	Set(ctx context.Context, key string, rules allocation.RuleSet, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
