// Package report is the read-only query surface over accounts and the
// ledger. Nothing here writes, and no figure it computes feeds balance math.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Service struct {
	uow      repository.UnitOfWork
	accounts *accountsvc.Service
	logger   *slog.Logger
}

func NewService(uow repository.UnitOfWork, accounts *accountsvc.Service, logger *slog.Logger) *Service {
	return &Service{uow: uow, accounts: accounts, logger: logger.With("component", "report")}
}

type AccountBalance struct {
	AccountID uuid.UUID       `json:"accountId"`
	Category  string          `json:"category"`
	Status    account.Status  `json:"status"`
	Balance   decimal.Decimal `json:"balance"`
}

// Balances is a snapshot of one dependent's accounts. Total is the main
// balance plus every sub-account balance.
type Balances struct {
	DependentID uuid.UUID        `json:"dependentId"`
	Currency    string           `json:"currency"`
	Main        AccountBalance   `json:"main"`
	Categories  []AccountBalance `json:"categories"`
	Allocated   decimal.Decimal  `json:"allocated"`
	Total       decimal.Decimal  `json:"total"`
}

// CategoryBalances reads the stored balances of a dependent's accounts.
func (s *Service) CategoryBalances(ctx context.Context, dependentID uuid.UUID) (*Balances, error) {
	set, err := s.accounts.LoadSet(ctx, dependentID)
	if err != nil {
		return nil, err
	}
	out := &Balances{
		DependentID: dependentID,
		Currency:    string(set.Main.Currency),
		Main:        balanceOf(set.Main),
		Categories:  make([]AccountBalance, 0, len(set.Subs)),
		Allocated:   decimal.Zero,
	}
	for _, sub := range set.Subs {
		out.Categories = append(out.Categories, balanceOf(sub))
		out.Allocated = out.Allocated.Add(sub.Balance)
	}
	out.Total = set.Total()
	return out, nil
}

func balanceOf(a *account.Account) AccountBalance {
	return AccountBalance{AccountID: a.ID, Category: a.Label(), Status: a.Status, Balance: a.Balance}
}

// HistoryFilter narrows an account's history. Page starts at 1.
type HistoryFilter struct {
	From     *time.Time
	To       *time.Time
	Category string
	Type     string
	Page     int
	PageSize int
}

// HistoryPage is one page of entries, newest first. Warning is set when the
// total could not be counted; Total is then -1.
type HistoryPage struct {
	Entries  []*ledger.Entry `json:"entries"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Total    int64           `json:"total"`
	Warning  string          `json:"warning,omitempty"`
}

// History pages through an account's entries.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, f HistoryFilter) (*HistoryPage, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	filter := repository.LedgerFilter{
		AccountID: accountID,
		From:      f.From,
		To:        f.To,
		Category:  f.Category,
	}
	if f.Type != "" {
		t, err := ledger.ParseEntryType(f.Type)
		if err != nil {
			return nil, err
		}
		filter.Type = t
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, fmt.Errorf("from must be before to: %w", domain.ErrValidation)
	}
	page, size := normalizePage(f.Page, f.PageSize)
	filter.Limit = size
	filter.Offset = (page - 1) * size

	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	entries, err := repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := &HistoryPage{Entries: entries, Page: page, PageSize: size}

	count := filter
	count.Limit, count.Offset = 0, 0
	total, err := repo.Count(ctx, count)
	if err != nil {
		s.logger.Warn("history count failed", "accountID", accountID, "error", err)
		out.Total = -1
		out.Warning = "total count unavailable"
		return out, nil
	}
	out.Total = total
	return out, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

type CategoryTotals struct {
	Category string          `json:"category"`
	Credits  decimal.Decimal `json:"credits"`
	Debits   decimal.Decimal `json:"debits"`
	Net      decimal.Decimal `json:"net"`
	Entries  int             `json:"entries"`
}

// Summary totals a dependent's entries over [From, To). Debits are reported
// as positive magnitudes. Deposits and Payouts count money entering and
// leaving the dependent; everything else moves funds between its accounts.
type Summary struct {
	DependentID  uuid.UUID        `json:"dependentId"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	Categories   []CategoryTotals `json:"categories"`
	TotalCredits decimal.Decimal  `json:"totalCredits"`
	TotalDebits  decimal.Decimal  `json:"totalDebits"`
	Deposits     decimal.Decimal  `json:"deposits"`
	Payouts      decimal.Decimal  `json:"payouts"`
}

func (s *Service) Summary(ctx context.Context, dependentID uuid.UUID, from, to time.Time) (*Summary, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to: %w", domain.ErrValidation)
	}
	entries, err := s.entries(ctx, repository.LedgerFilter{DependentID: dependentID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	return summarize(dependentID, from, to, entries), nil
}

func summarize(dependentID uuid.UUID, from, to time.Time, entries []*ledger.Entry) *Summary {
	out := &Summary{
		DependentID:  dependentID,
		From:         from,
		To:           to,
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
		Deposits:     decimal.Zero,
		Payouts:      decimal.Zero,
	}
	index := map[string]int{}
	for _, e := range entries {
		i, ok := index[e.Category]
		if !ok {
			i = len(out.Categories)
			index[e.Category] = i
			out.Categories = append(out.Categories, CategoryTotals{
				Category: e.Category,
				Credits:  decimal.Zero,
				Debits:   decimal.Zero,
				Net:      decimal.Zero,
			})
		}
		ct := &out.Categories[i]
		ct.Entries++
		ct.Net = ct.Net.Add(e.Amount)
		if e.Type == ledger.Credit {
			ct.Credits = ct.Credits.Add(e.Amount)
			out.TotalCredits = out.TotalCredits.Add(e.Amount)
		} else {
			ct.Debits = ct.Debits.Add(e.Magnitude())
			out.TotalDebits = out.TotalDebits.Add(e.Magnitude())
		}
		switch e.Metadata.Kind {
		case ledger.KindDeposit:
			out.Deposits = out.Deposits.Add(e.Amount)
		case ledger.KindPayout:
			out.Payouts = out.Payouts.Add(e.Magnitude())
		}
	}
	return out
}

// MonthlyReport is a calendar month's summary plus each account's balance
// after its last entry of the month.
type MonthlyReport struct {
	Year            int              `json:"year"`
	Month           time.Month       `json:"month"`
	Summary         *Summary         `json:"summary"`
	ClosingBalances []AccountBalance `json:"closingBalances"`
}

// MonthlyReport reports on a month in UTC. Accounts without entries up to the
// month end close at zero.
func (s *Service) MonthlyReport(ctx context.Context, dependentID uuid.UUID, year int, month time.Month) (*MonthlyReport, error) {
	if month < time.January || month > time.December || year < 1970 {
		return nil, fmt.Errorf("invalid month %d-%02d: %w", year, month, domain.ErrValidation)
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	set, err := s.accounts.LoadSet(ctx, dependentID)
	if err != nil {
		return nil, err
	}
	upToEnd, err := s.entries(ctx, repository.LedgerFilter{DependentID: dependentID, To: &to})
	if err != nil {
		return nil, err
	}

	var inMonth []*ledger.Entry
	closing := map[uuid.UUID]decimal.Decimal{}
	for _, e := range upToEnd {
		closing[e.AccountID] = e.BalanceAfter
		if !e.CreatedAt.Before(from) {
			inMonth = append(inMonth, e)
		}
	}

	out := &MonthlyReport{
		Year:    year,
		Month:   month,
		Summary: summarize(dependentID, from, to, inMonth),
	}
	for _, a := range set.All() {
		b := balanceOf(a)
		b.Balance = decimal.Zero
		if v, ok := closing[a.ID]; ok {
			b.Balance = v
		}
		out.ClosingBalances = append(out.ClosingBalances, b)
	}
	return out, nil
}

// entries lists matching entries in the order they were applied.
func (s *Service) entries(ctx context.Context, f repository.LedgerFilter) ([]*ledger.Entry, error) {
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	f.Ascending = true
	return repo.List(ctx, f)
}
