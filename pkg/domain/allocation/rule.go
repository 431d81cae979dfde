// Package allocation holds the category percentage table and the split
// arithmetic used when funds are distributed.
package allocation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Rule assigns a percentage of every distributed deposit to a category.
type Rule struct {
	Category   account.Category `json:"category"`
	Percentage decimal.Decimal  `json:"percentage"`
}

// RuleSet is the active allocation table for a dependent.
type RuleSet []Rule

// Validate checks categories are known and unique, each percentage is within
// [0, 100], and the total does not exceed 100.
func (rs RuleSet) Validate() error {
	seen := make(map[account.Category]struct{}, len(rs))
	for _, r := range rs {
		if !r.Category.Valid() {
			return fmt.Errorf("category %q: %w", r.Category, domain.ErrInvalidAllocation)
		}
		if _, dup := seen[r.Category]; dup {
			return fmt.Errorf("category %q listed twice: %w", r.Category, domain.ErrInvalidAllocation)
		}
		seen[r.Category] = struct{}{}
		if r.Percentage.IsNegative() || r.Percentage.GreaterThan(oneHundred) {
			return fmt.Errorf("%s percentage %s: %w", r.Category, r.Percentage, domain.ErrInvalidAllocation)
		}
	}
	if total := rs.Total(); total.GreaterThan(oneHundred) {
		return fmt.Errorf("percentages sum to %s: %w", total, domain.ErrInvalidAllocation)
	}
	return nil
}

// Total is the sum of all percentages.
func (rs RuleSet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(r.Percentage)
	}
	return total
}

// Sorted returns a copy ordered by the canonical category order.
func (rs RuleSet) Sorted() RuleSet {
	out := make(RuleSet, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category.Rank() < out[j].Category.Rank()
	})
	return out
}

// Categories lists the categories the rules touch, in canonical order.
func (rs RuleSet) Categories() []account.Category {
	sorted := rs.Sorted()
	out := make([]account.Category, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, r.Category)
	}
	return out
}

// String renders the table in the same form ParseRuleSet accepts.
func (rs RuleSet) String() string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs.Sorted() {
		parts = append(parts, fmt.Sprintf("%s:%s", r.Category, r.Percentage))
	}
	return strings.Join(parts, ",")
}

// ParseRuleSet reads "healthcare:25,groceries:30" style tables. An empty
// string yields an empty rule set.
func ParseRuleSet(s string) (RuleSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RuleSet{}, nil
	}
	var rs RuleSet
	for _, pair := range strings.Split(s, ",") {
		name, pct, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("rule %q is not category:percent: %w", pair, domain.ErrInvalidAllocation)
		}
		cat, err := account.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", pair, domain.ErrInvalidAllocation)
		}
		rs = append(rs, Rule{Category: cat, Percentage: p})
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}
