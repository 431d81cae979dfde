package allocation

import (
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/shopspring/decimal"
)

// Share is the computed amount for one category.
type Share struct {
	Category   account.Category
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// Plan is the outcome of splitting an amount.
type Plan struct {
	Amount      decimal.Decimal
	Shares      []Share
	Distributed decimal.Decimal
	Remainder   decimal.Decimal
}

// Empty reports whether nothing would move.
func (p Plan) Empty() bool { return p.Distributed.IsZero() }

// Split computes each category's share as round_half_even(amount * p / 100)
// at the given precision, once per category and independently of the other
// categories. Shares that round to zero are dropped.
//
// Rounding half to even can push the total above amount (0.03 split 50/50
// rounds to 0.02 + 0.02). When that happens one minor unit at a time is
// taken back from the largest share, ties going to the category that comes
// last in canonical order, so Distributed never exceeds Amount.
func (rs RuleSet) Split(amount decimal.Decimal, precision int32) (Plan, error) {
	if err := rs.Validate(); err != nil {
		return Plan{}, err
	}
	if amount.IsNegative() {
		return Plan{}, domain.ErrInvalidAmount
	}
	plan := Plan{Amount: amount, Distributed: decimal.Zero, Remainder: amount}
	if amount.IsZero() || len(rs) == 0 {
		return plan, nil
	}

	sorted := rs.Sorted()
	shares := make([]Share, 0, len(sorted))
	total := decimal.Zero
	for _, r := range sorted {
		allocated := amount.Mul(r.Percentage).Shift(-2).RoundBank(precision)
		shares = append(shares, Share{Category: r.Category, Percentage: r.Percentage, Amount: allocated})
		total = total.Add(allocated)
	}

	unit := decimal.New(1, -precision)
	for total.GreaterThan(amount) {
		idx := largest(shares)
		shares[idx].Amount = shares[idx].Amount.Sub(unit)
		total = total.Sub(unit)
	}

	for _, s := range shares {
		if s.Amount.IsPositive() {
			plan.Shares = append(plan.Shares, s)
		}
	}
	plan.Distributed = total
	plan.Remainder = amount.Sub(total)
	return plan, nil
}

func largest(shares []Share) int {
	idx := 0
	for i := 1; i < len(shares); i++ {
		if shares[i].Amount.GreaterThanOrEqual(shares[idx].Amount) {
			idx = i
		}
	}
	return idx
}
