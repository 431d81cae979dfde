package payment

import (
	"errors"

	"github.com/amirasaad/carefund/infra/provider/stripepayment"
	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	depositsvc "github.com/amirasaad/carefund/pkg/service/deposit"
	"github.com/amirasaad/carefund/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// Routes registers the Stripe webhook. It is authenticated by the Stripe
// signature, not by a bearer token.
func Routes(r fiber.Router, a *app.App) {
	webhook := stripepayment.NewWebhook(a.Config.Stripe, a.Deps.Logger)
	r.Post("/stripe/webhooks", StripeWebhookHandler(webhook, a.DepositGateway))
}

// StripeWebhookHandler turns a verified payment_intent.succeeded event into
// a deposit confirmation. Events that carry no deposit are acknowledged.
// Terminal outcomes answer 200 so Stripe stops redelivering; only failures
// worth a retry answer 5xx.
func StripeWebhookHandler(webhook *stripepayment.Webhook, gateway *depositsvc.Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("Stripe-Signature")
		if signature == "" {
			return common.ProblemDetailsJSON(c, "Missing Stripe-Signature header", nil, fiber.StatusBadRequest)
		}
		payload := c.Body()
		if len(payload) == 0 {
			return common.ProblemDetailsJSON(c, "Empty request body", nil, fiber.StatusBadRequest)
		}

		cmd, err := webhook.Parse(payload, signature)
		switch {
		case errors.Is(err, stripepayment.ErrUnhandledEvent):
			return c.SendStatus(fiber.StatusOK)
		case errors.Is(err, stripepayment.ErrNotConfigured):
			return common.ProblemDetailsJSON(c, "Webhook not configured", err, fiber.StatusServiceUnavailable)
		case err != nil:
			return common.ProblemDetailsJSON(c, "Invalid webhook", err)
		}

		result, err := gateway.Confirm(c.UserContext(), *cmd)
		if err != nil && result.Status != deposit.StatusRejected {
			return common.ProblemDetailsJSON(c, "Failed to confirm deposit", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, string(result.Status), common.ToConfirmResponse(result))
	}
}
