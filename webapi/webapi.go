// Package webapi exposes the ledger over HTTP. Route groups live in
// sub-packages:
//   - account: onboarding, status, allocation tables and funder links
//   - deposit: payment confirmations and distribution retries
//   - payment: the Stripe webhook
//   - transfer: category transfers, reversals and payouts
//   - report: balances, history, summaries and audits
package webapi

import (
	"errors"

	"github.com/amirasaad/carefund/pkg/app"
	accountweb "github.com/amirasaad/carefund/webapi/account"
	"github.com/amirasaad/carefund/webapi/common"
	depositweb "github.com/amirasaad/carefund/webapi/deposit"
	"github.com/amirasaad/carefund/webapi/payment"
	reportweb "github.com/amirasaad/carefund/webapi/report"
	transferweb "github.com/amirasaad/carefund/webapi/transfer"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"

	_ "github.com/amirasaad/carefund/docs"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(a *app.App) *fiber.App {
	cfg := a.Config
	fiberCfg := fiber.Config{
		AppName: cfg.Name,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	}
	if rl := cfg.RateLimit; rl != nil && len(rl.TrustedProxies) > 0 {
		fiberCfg.EnableTrustedProxyCheck = true
		fiberCfg.TrustedProxies = rl.TrustedProxies
		fiberCfg.ProxyHeader = rl.ProxyHeader
		if fiberCfg.ProxyHeader == "" {
			fiberCfg.ProxyHeader = fiber.HeaderXForwardedFor
		}
		fiberCfg.EnableIPValidation = true
	}
	fiberApp := fiber.New(fiberCfg)
	fiberApp.Get("/swagger/*", swagger.New(swagger.Config{
		TryItOutEnabled:      true,
		PersistAuthorization: true,
	}))

	if cfg.RateLimit != nil && cfg.RateLimit.MaxRequests > 0 {
		fiberApp.Use(limiter.New(limiter.Config{
			Max:          cfg.RateLimit.MaxRequests,
			Expiration:   cfg.RateLimit.Window,
			KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health"
			},
			LimitReached: func(c *fiber.Ctx) error {
				return common.ProblemDetailsJSON(
					c,
					"Too Many Requests",
					errors.New("rate limit exceeded"),
					fiber.StatusTooManyRequests,
				)
			},
		}))
	}
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "app": cfg.Name, "env": cfg.Env})
	})
	if cfg.Metrics != nil && cfg.Metrics.Enabled && a.Deps.Metrics != nil {
		path := cfg.Metrics.Endpoint
		if path == "" {
			path = "/metrics"
		}
		fiberApp.Get(path, adaptor.HTTPHandler(a.Deps.Metrics.Handler()))
	}

	payment.Routes(fiberApp, a)
	accountweb.Routes(fiberApp, a)
	depositweb.Routes(fiberApp, a)
	transferweb.Routes(fiberApp, a)
	reportweb.Routes(fiberApp, a)
	return fiberApp
}
