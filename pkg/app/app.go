// Package app builds the ledger services over a set of infrastructure
// dependencies and subscribes the event handlers.
package app

import (
	"fmt"
	"time"

	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/handler"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	allocationsvc "github.com/amirasaad/carefund/pkg/service/allocation"
	"github.com/amirasaad/carefund/pkg/service/auth"
	"github.com/amirasaad/carefund/pkg/service/authz"
	depositsvc "github.com/amirasaad/carefund/pkg/service/deposit"
	distributionsvc "github.com/amirasaad/carefund/pkg/service/distribution"
	ledgersvc "github.com/amirasaad/carefund/pkg/service/ledger"
	"github.com/amirasaad/carefund/pkg/service/payout"
	"github.com/amirasaad/carefund/pkg/service/report"
	"github.com/amirasaad/carefund/pkg/service/transfer"
)

type App struct {
	Deps   *config.Deps
	Config *config.App

	AuthService         *auth.Service
	Authorizer          *authz.LinkAuthorizer
	AccountService      *accountsvc.Service
	LedgerService       *ledgersvc.Service
	AllocationProvider  *allocationsvc.Provider
	DistributionService *distributionsvc.Service
	DepositGateway      *depositsvc.Gateway
	TransferService     *transfer.Service
	PayoutService       *payout.Service
	ReportService       *report.Service
	EventTracker        *handler.IdempotencyTracker
}

// New wires every service. Invalid ledger or allocation settings fail here
// rather than on the first deposit.
func New(deps *config.Deps) (*App, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}

	var categories []account.Category
	currency := money.DefaultCurrency
	if cfg.Ledger != nil {
		parsed, err := account.ParseCategories(cfg.Ledger.Categories)
		if err != nil {
			return nil, fmt.Errorf("LEDGER_CATEGORIES: %w", err)
		}
		categories = parsed
		if cfg.Ledger.Currency != "" {
			if currency, err = money.ParseCode(cfg.Ledger.Currency); err != nil {
				return nil, fmt.Errorf("LEDGER_CURRENCY: %w", err)
			}
		}
	}

	defaults := allocation.RuleSet{}
	var ttl time.Duration
	if cfg.Allocation != nil {
		ttl = cfg.Allocation.CacheTTL
		rules, err := allocation.ParseRuleSet(cfg.Allocation.Default)
		if err != nil {
			return nil, fmt.Errorf("ALLOCATION_DEFAULT: %w", err)
		}
		defaults = rules
	}

	logger := deps.Logger
	a := &App{Deps: deps, Config: cfg}

	var jwtCfg *config.Jwt
	if cfg.Auth != nil {
		jwtCfg = cfg.Auth.Jwt
	}
	a.AuthService = auth.NewWithJWT(jwtCfg, logger)
	a.Authorizer = authz.NewLinkAuthorizer(deps.Uow, logger)
	a.AccountService = accountsvc.NewService(deps.Uow, logger, categories, currency)
	a.LedgerService = ledgersvc.NewService(deps.Uow, a.AccountService, logger)

	provider, err := allocationsvc.NewProvider(deps.Uow, deps.RuleCache, defaults, ttl, logger)
	if err != nil {
		return nil, err
	}
	a.AllocationProvider = provider
	a.DistributionService = distributionsvc.NewService(
		deps.Uow, a.AccountService, a.LedgerService, provider, deps.EventBus, deps.Metrics, logger)
	a.DepositGateway = depositsvc.NewGateway(
		deps.Uow, a.AccountService, a.LedgerService, a.DistributionService,
		a.Authorizer, deps.Locker, deps.EventBus, deps.Metrics, logger)
	a.TransferService = transfer.NewService(
		deps.Uow, a.AccountService, a.LedgerService, deps.EventBus, deps.Metrics, logger)
	a.PayoutService = payout.NewService(
		deps.Uow, a.AccountService, a.LedgerService, deps.EventBus, deps.Metrics, logger)
	a.ReportService = report.NewService(deps.Uow, a.AccountService, logger)

	a.EventTracker = handler.Register(deps.EventBus, logger)
	return a, nil
}
