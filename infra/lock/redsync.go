// Package lock provides a Redis-backed lock.Locker.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Options tunes mutex acquisition.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
	Prefix     string
}

// RedsyncLocker serializes work on a key across instances with a Redlock
// mutex.
type RedsyncLocker struct {
	rs     *redsync.Redsync
	opts   Options
	logger *slog.Logger
}

func NewRedsyncLocker(client redis.UniversalClient, opts Options, logger *slog.Logger) *RedsyncLocker {
	if opts.Expiry <= 0 {
		opts.Expiry = 10 * time.Second
	}
	if opts.Tries <= 0 {
		opts.Tries = 32
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	return &RedsyncLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger.With("component", "redsync-lock"),
	}
}

// WithLock runs fn while holding the mutex for key. Failing to acquire it
// returns lock.ErrNotAcquired; fn is not run.
func (l *RedsyncLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	name := l.opts.Prefix + "lock:" + key
	mutex := l.rs.NewMutex(
		name,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if contended(err) {
			return fmt.Errorf("%s: %w", name, lock.ErrNotAcquired)
		}
		return fmt.Errorf("acquire %s: %w", name, err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			l.logger.Warn("failed to release lock", "key", name, "ok", ok, "error", err)
		}
	}()
	return fn(ctx)
}

// contended reports whether err means another holder has the mutex.
func contended(err error) bool {
	msg := err.Error()
	return errors.Is(err, redsync.ErrFailed) ||
		strings.Contains(msg, "lock already taken") ||
		strings.Contains(msg, "failed to acquire lock")
}

var _ lock.Locker = (*RedsyncLocker)(nil)
