package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/amirasaad/carefund/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisEventBus.
type RedisConfig struct {
	// Stream is the prefix for per-type streams: <Stream>:<eventType>.
	Stream string
	Group  string
	// Block bounds each XREADGROUP call.
	Block time.Duration
}

// RedisEventBus publishes events to Redis Streams and consumes them through
// a consumer group, one stream per event type.
type RedisEventBus struct {
	client *redis.Client
	cfg    RedisConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis connects to url and returns a bus backed by its streams.
func NewWithRedis(url string, cfg RedisConfig, logger *slog.Logger) (*RedisEventBus, error) {
	if url == "" || cfg.Stream == "" || cfg.Group == "" {
		return nil, fmt.Errorf("redis event bus: url, stream, and group are required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	return NewWithRedisClient(client, cfg, logger), nil
}

// NewWithRedisClient wraps an existing client.
func NewWithRedisClient(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *RedisEventBus {
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client: client,
		cfg:    cfg,
		logger: logger.With("bus", "redis", "stream", cfg.Stream),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *RedisEventBus) streamFor(eventType string) string {
	return b.cfg.Stream + ":" + eventType
}

func (b *RedisEventBus) dlqFor(eventType string) string {
	return b.streamFor(eventType) + "-DLQ"
}

// Emit appends the event to its type's stream.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	payload, err := encode(event)
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamFor(event.Type()),
		Values: map[string]any{"event": string(payload)},
	}).Err()
	if err != nil {
		b.logger.Error("failed to emit event", "type", event.Type(), "error", err)
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", event.Type())
	return nil
}

// Register starts a consumer for the event type's stream. Messages whose
// handler fails, or that cannot be decoded, are moved to the DLQ stream and
// acknowledged.
func (b *RedisEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	stream := b.streamFor(eventType)
	err := b.client.XGroupCreateMkStream(b.ctx, stream, b.cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		b.logger.Error("failed to create consumer group", "stream", stream, "error", err)
	}
	consumer := fmt.Sprintf("consumer-%s-%d", eventType, time.Now().UnixNano())
	b.logger.Info("registering handler", "event_type", eventType, "consumer", consumer)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			if b.ctx.Err() != nil {
				return
			}
			res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
				Group:    b.cfg.Group,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    10,
				Block:    b.cfg.Block,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if b.ctx.Err() != nil {
					return
				}
				b.logger.Error("error reading from stream", "error", err, "consumer", consumer)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			for _, s := range res {
				for _, msg := range s.Messages {
					b.handle(eventType, msg, handler)
				}
			}
		}
	}()
}

func (b *RedisEventBus) handle(eventType string, msg redis.XMessage, handler eventbus.HandlerFunc) {
	stream := b.streamFor(eventType)
	raw, _ := msg.Values["event"].(string)
	evt, err := decode([]byte(raw))
	if err == nil {
		err = handler(b.ctx, evt)
	}
	if err != nil {
		b.logger.Error("event handling failed", "event_type", eventType, "id", msg.ID, "error", err)
		b.pushToDLQ(eventType, msg.Values, err)
	}
	if ackErr := b.client.XAck(b.ctx, stream, b.cfg.Group, msg.ID).Err(); ackErr != nil {
		b.logger.Error("failed to ack message", "id", msg.ID, "error", ackErr)
	}
}

func (b *RedisEventBus) pushToDLQ(eventType string, values map[string]any, cause error) {
	dlq := make(map[string]any, len(values)+1)
	for k, v := range values {
		dlq[k] = v
	}
	dlq["error"] = cause.Error()
	if err := b.client.XAdd(b.ctx, &redis.XAddArgs{Stream: b.dlqFor(eventType), Values: dlq}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "event_type", eventType, "error", err)
	}
}

// Close stops the consumers and waits for them to exit. The client is left
// open.
func (b *RedisEventBus) Close() {
	b.cancel()
	b.wg.Wait()
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
