// Package stripepayment turns verified Stripe webhooks into deposit
// confirmations.
package stripepayment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/service/deposit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Metadata keys the checkout flow sets on every PaymentIntent.
const (
	MetaDependentAccountID = "dependent_account_id"
	MetaFunderID           = "funder_id"
)

var (
	// ErrNotConfigured means no signing secret is set.
	ErrNotConfigured = errors.New("stripe webhook signing secret not configured")
	// ErrInvalidSignature means the payload was not signed with our secret.
	ErrInvalidSignature = fmt.Errorf("stripe webhook signature verification failed: %w", domain.ErrUnauthorized)
	// ErrUnhandledEvent is returned for event types that carry no deposit.
	ErrUnhandledEvent = errors.New("unhandled stripe event type")
)

type eventHandler func(stripe.Event, *slog.Logger) (*deposit.ConfirmCommand, error)

// Webhook verifies and decodes Stripe webhook deliveries.
type Webhook struct {
	secret   string
	logger   *slog.Logger
	handlers map[stripe.EventType]eventHandler
}

// NewWebhook creates a webhook decoder for the configured signing secret.
func NewWebhook(cfg *config.Stripe, logger *slog.Logger) *Webhook {
	w := &Webhook{logger: logger.With("provider", "stripe")}
	if cfg != nil {
		w.secret = cfg.SigningSecret
	}
	w.handlers = map[stripe.EventType]eventHandler{
		stripe.EventTypePaymentIntentSucceeded: w.handlePaymentIntentSucceeded,
	}
	return w
}

// Parse verifies the Stripe-Signature header and returns the deposit
// confirmation the event describes.
func (w *Webhook) Parse(payload []byte, signature string) (*deposit.ConfirmCommand, error) {
	if w.secret == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		w.logger.Warn("Webhook signature rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := w.logger.With("event_id", event.ID, "type", event.Type)
	handler, ok := w.handlers[event.Type]
	if !ok {
		log.Debug("Ignoring webhook event")
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}
	return handler(event, log)
}

func (w *Webhook) handlePaymentIntentSucceeded(event stripe.Event, log *slog.Logger) (*deposit.ConfirmCommand, error) {
	if event.Data == nil || event.Data.Raw == nil {
		return nil, fmt.Errorf("payment_intent.succeeded: event data is empty: %w", domain.ErrValidation)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("payment_intent.succeeded: %v: %w", err, domain.ErrValidation)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("payment_intent.succeeded: payment intent id is empty: %w", domain.ErrValidation)
	}

	accountID, err := metadataUUID(pi.Metadata, MetaDependentAccountID)
	if err != nil {
		return nil, err
	}
	funderID, err := metadataUUID(pi.Metadata, MetaFunderID)
	if err != nil {
		return nil, err
	}
	code, err := money.ParseCode(strings.ToUpper(string(pi.Currency)))
	if err != nil {
		return nil, err
	}

	cmd := &deposit.ConfirmCommand{
		PaymentReference:   pi.ID,
		DependentAccountID: accountID,
		Amount:             decimal.New(pi.AmountReceived, -code.Precision()),
		Currency:           string(code),
		FunderID:           funderID,
	}
	log.Info("Payment intent succeeded", "payment_intent_id", pi.ID, "amount", cmd.Amount, "currency", code)
	return cmd, nil
}

func metadataUUID(meta map[string]string, key string) (uuid.UUID, error) {
	raw, ok := meta[key]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("payment intent metadata %q is missing: %w", key, domain.ErrValidation)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("payment intent metadata %q: %v: %w", key, err, domain.ErrValidation)
	}
	return id, nil
}
