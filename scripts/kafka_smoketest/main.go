// Command kafka_smoketest publishes a deposit event through the Kafka event
// bus and waits for the bus to deliver it back, verifying a local cluster.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/amirasaad/carefund/infra/eventbus"
	"github.com/amirasaad/carefund/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunSmokeTest round-trips one DepositApplied event.
func RunSmokeTest() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := strings.TrimSpace(os.Getenv("BROKERS"))
	if brokers == "" {
		brokers = "localhost:9093,localhost:9092"
	}
	groupID := strings.TrimSpace(os.Getenv("GROUP_ID"))
	if groupID == "" {
		groupID = "carefund-smoketest"
	}

	bus, err := eventbus.NewWithKafka([]string{brokers}, eventbus.KafkaConfig{
		GroupID:     groupID,
		TopicPrefix: "carefund-smoketest",
	}, logger)
	if err != nil {
		logger.Error("kafka bus init failed", "error", err)
		return err
	}
	defer func() { _ = bus.Close() }()

	ref := "smoke_" + uuid.NewString()
	received := make(chan string, 1)
	bus.Register(events.EventTypeDepositApplied.String(), func(_ context.Context, e events.Event) error {
		if d, ok := e.(*events.DepositApplied); ok && d.PaymentReference == ref {
			select {
			case received <- d.PaymentReference:
			default:
			}
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = bus.Emit(ctx, events.DepositApplied{
		PaymentReference: ref,
		DependentID:      uuid.New(),
		FunderID:         uuid.New(),
		Amount:           decimal.NewFromInt(1),
		Currency:         "USD",
		Timestamp:        time.Now().UTC(),
	})
	if err != nil {
		logger.Error("emit failed", "error", err)
		return err
	}
	logger.Info("produced", "reference", ref)

	select {
	case got := <-received:
		logger.Info("consumed", "reference", got)
	case <-ctx.Done():
		return fmt.Errorf("no delivery for %s: %w", ref, ctx.Err())
	}

	logger.Info("kafka smoke test passed")
	return nil
}

func main() {
	if err := RunSmokeTest(); err != nil {
		os.Exit(1)
	}
}
