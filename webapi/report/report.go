package report

import (
	"fmt"
	"time"

	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/domain"
	reportsvc "github.com/amirasaad/carefund/pkg/service/report"
	"github.com/amirasaad/carefund/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const defaultSummaryWindow = 30 * 24 * time.Hour

// Routes registers the read-only reporting endpoints.
//
// Routes:
//   - GET /dependents/:id/balances          : Main and category balances.
//   - GET /accounts/:id/history             : Paged ledger entries, newest first.
//   - GET /dependents/:id/summary           : Per-category totals over a window.
//   - GET /dependents/:id/reports/monthly   : Calendar month report.
//   - GET /dependents/:id/audit             : Ledger replay against stored balances.
func Routes(r fiber.Router, a *app.App) {
	protected := common.Protected(a.Config)
	r.Get("/dependents/:id/balances", protected, Balances(a))
	r.Get("/accounts/:id/history", protected, History(a))
	r.Get("/dependents/:id/summary", protected, Summary(a))
	r.Get("/dependents/:id/reports/monthly", protected, Monthly(a))
	r.Get("/dependents/:id/audit", protected, Audit(a))
}

// Balances returns a handler reporting a dependent's balances.
// @Summary Category balances
// @Tags reports
// @Produce json
// @Param id path string true "Dependent ID"
// @Success 200 {object} common.Response "Balances"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Failure 404 {object} common.ProblemDetails "Dependent not found"
// @Router /dependents/{id}/balances [get]
// @Security Bearer
func Balances(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dependentID, err := authorizeDependent(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read balances", err)
		}
		balances, err := a.ReportService.CategoryBalances(c.UserContext(), dependentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read balances", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Balances fetched", balances)
	}
}

// History returns a handler paging through an account's entries.
// @Summary Account history
// @Tags reports
// @Produce json
// @Param id path string true "Account ID"
// @Param from query string false "Inclusive start, RFC 3339 or YYYY-MM-DD"
// @Param to query string false "Exclusive end, RFC 3339 or YYYY-MM-DD"
// @Param category query string false "Category"
// @Param type query string false "credit or debit"
// @Param page query int false "Page, from 1"
// @Param pageSize query int false "Page size, at most 100"
// @Success 200 {object} common.Response "History page"
// @Router /accounts/{id}/history [get]
// @Security Bearer
func History(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		accountID, err := common.UUIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		filter, err := historyFilter(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid history query", err)
		}
		ctx := c.UserContext()
		acct, err := a.AccountService.Get(ctx, accountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read history", err)
		}
		if err := a.Authorizer.Require(ctx, requester, acct.DependentID); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read history", err)
		}
		page, err := a.ReportService.History(ctx, accountID, filter)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read history", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "History fetched", common.ToHistoryResponse(page))
	}
}

// Summary returns a handler totalling a dependent's entries over [from, to).
// The window defaults to the last 30 days.
// @Summary Spending summary
// @Tags reports
// @Produce json
// @Param id path string true "Dependent ID"
// @Param from query string false "Inclusive start"
// @Param to query string false "Exclusive end"
// @Success 200 {object} common.Response "Summary"
// @Router /dependents/{id}/summary [get]
// @Security Bearer
func Summary(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dependentID, err := authorizeDependent(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to summarize", err)
		}
		to := time.Now().UTC()
		if t, err := parseTime(c.Query("to")); err != nil {
			return common.ProblemDetailsJSON(c, "Invalid summary query", err)
		} else if t != nil {
			to = *t
		}
		from := to.Add(-defaultSummaryWindow)
		if f, err := parseTime(c.Query("from")); err != nil {
			return common.ProblemDetailsJSON(c, "Invalid summary query", err)
		} else if f != nil {
			from = *f
		}
		if !from.Before(to) {
			return common.ProblemDetailsJSON(c, "Invalid summary query",
				fmt.Errorf("from must be before to: %w", domain.ErrValidation))
		}
		summary, err := a.ReportService.Summary(c.UserContext(), dependentID, from, to)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to summarize", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Summary fetched", summary)
	}
}

// Monthly returns a handler reporting on one calendar month.
// @Summary Monthly report
// @Tags reports
// @Produce json
// @Param id path string true "Dependent ID"
// @Param year query int true "Year"
// @Param month query int true "Month, 1-12"
// @Success 200 {object} common.Response "Monthly report"
// @Router /dependents/{id}/reports/monthly [get]
// @Security Bearer
func Monthly(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dependentID, err := authorizeDependent(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to build report", err)
		}
		now := time.Now().UTC()
		year := c.QueryInt("year", now.Year())
		month := c.QueryInt("month", int(now.Month()))
		report, err := a.ReportService.MonthlyReport(c.UserContext(), dependentID, year, time.Month(month))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to build report", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Report built", report)
	}
}

// Audit returns a handler that replays a dependent's ledger.
// @Summary Ledger audit
// @Tags reports
// @Produce json
// @Param id path string true "Dependent ID"
// @Success 200 {object} common.Response "Audit passed"
// @Failure 409 {object} common.ProblemDetails "Audit found discrepancies"
// @Router /dependents/{id}/audit [get]
// @Security Bearer
func Audit(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dependentID, err := authorizeDependent(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to audit", err)
		}
		report, err := a.ReportService.Audit(c.UserContext(), dependentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to audit", err)
		}
		if !report.OK() {
			return common.SuccessResponseJSON(c, fiber.StatusConflict, "Audit found discrepancies", report)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Audit passed", report)
	}
}

func authorizeDependent(c *fiber.Ctx, a *app.App) (uuid.UUID, error) {
	requester, err := common.RequesterID(c, a.AuthService)
	if err != nil {
		return uuid.Nil, err
	}
	dependentID, err := common.UUIDParam(c, "id")
	if err != nil {
		return uuid.Nil, err
	}
	if err := a.Authorizer.Require(c.UserContext(), requester, dependentID); err != nil {
		return uuid.Nil, err
	}
	return dependentID, nil
}

func historyFilter(c *fiber.Ctx) (reportsvc.HistoryFilter, error) {
	f := reportsvc.HistoryFilter{
		Category: c.Query("category"),
		Type:     c.Query("type"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", 0),
	}
	var err error
	if f.From, err = parseTime(c.Query("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime(c.Query("to")); err != nil {
		return f, err
	}
	return f, nil
}

// parseTime accepts RFC 3339 or a plain date in UTC. Empty means unset.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("time %q: %w", s, domain.ErrValidation)
}
