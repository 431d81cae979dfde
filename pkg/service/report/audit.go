package report

import (
	"context"

	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Finding is one disagreement between stored figures and the ledger.
type Finding struct {
	AccountID uuid.UUID       `json:"accountId"`
	Category  string          `json:"category"`
	Reference string          `json:"reference,omitempty"`
	Expected  decimal.Decimal `json:"expected"`
	Actual    decimal.Decimal `json:"actual"`
	Problem   string          `json:"problem"`
}

// AuditReport replays a dependent's ledger. Conserved holds when the sum of
// all its balances equals deposits minus payouts.
type AuditReport struct {
	DependentID uuid.UUID       `json:"dependentId"`
	Accounts    int             `json:"accounts"`
	Entries     int             `json:"entries"`
	Deposits    decimal.Decimal `json:"deposits"`
	Payouts     decimal.Decimal `json:"payouts"`
	Total       decimal.Decimal `json:"total"`
	Conserved   bool            `json:"conserved"`
	Findings    []Finding       `json:"findings"`
}

// OK reports whether the audit found nothing.
func (r *AuditReport) OK() bool { return r.Conserved && len(r.Findings) == 0 }

// Audit checks, per account, that each entry's balanceAfter equals the
// running sum of the entries before it and that the stored balance equals
// the sum of all of them.
func (s *Service) Audit(ctx context.Context, dependentID uuid.UUID) (*AuditReport, error) {
	logger := s.logger.With("dependentID", dependentID)
	set, err := s.accounts.LoadSet(ctx, dependentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries(ctx, repository.LedgerFilter{DependentID: dependentID})
	if err != nil {
		return nil, err
	}

	out := &AuditReport{
		DependentID: dependentID,
		Accounts:    len(set.All()),
		Entries:     len(entries),
		Findings:    []Finding{},
		Total:       set.Total(),
	}
	summary := summarize(dependentID, set.Main.CreatedAt, set.Main.CreatedAt, entries)
	out.Deposits, out.Payouts = summary.Deposits, summary.Payouts

	running := map[uuid.UUID]decimal.Decimal{}
	labels := map[uuid.UUID]string{}
	for _, a := range set.All() {
		running[a.ID] = decimal.Zero
		labels[a.ID] = a.Label()
	}
	for _, e := range entries {
		next := running[e.AccountID].Add(e.Amount)
		running[e.AccountID] = next
		if !next.Equal(e.BalanceAfter) {
			out.Findings = append(out.Findings, Finding{
				AccountID: e.AccountID,
				Category:  e.Category,
				Reference: e.Reference,
				Expected:  next,
				Actual:    e.BalanceAfter,
				Problem:   "balanceAfter differs from running sum",
			})
		}
		if next.IsNegative() {
			out.Findings = append(out.Findings, Finding{
				AccountID: e.AccountID,
				Category:  e.Category,
				Reference: e.Reference,
				Expected:  decimal.Zero,
				Actual:    next,
				Problem:   "running balance below zero",
			})
		}
	}
	for _, a := range set.All() {
		if !running[a.ID].Equal(a.Balance) {
			out.Findings = append(out.Findings, Finding{
				AccountID: a.ID,
				Category:  labels[a.ID],
				Expected:  running[a.ID],
				Actual:    a.Balance,
				Problem:   "stored balance differs from sum of entries",
			})
		}
	}
	out.Conserved = out.Total.Equal(out.Deposits.Sub(out.Payouts))
	if !out.OK() {
		logger.Warn("audit found problems",
			"findings", len(out.Findings),
			"conserved", out.Conserved,
			"total", out.Total,
			"expected", out.Deposits.Sub(out.Payouts),
		)
	}
	return out, nil
}
