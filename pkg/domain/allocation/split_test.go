package allocation

import (
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustRules(t *testing.T, s string) RuleSet {
	t.Helper()
	rs, err := ParseRuleSet(s)
	require.NoError(t, err)
	return rs
}

func amounts(p Plan) map[account.Category]string {
	out := make(map[account.Category]string, len(p.Shares))
	for _, s := range p.Shares {
		out[s.Category] = s.Amount.StringFixed(2)
	}
	return out
}

func TestSplit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		rules     string
		amount    string
		want      map[account.Category]string
		remainder string
	}{
		{
			name:   "full distribution",
			rules:  "healthcare:25,groceries:30,education:20,other:25",
			amount: "1000",
			want: map[account.Category]string{
				account.CategoryHealthcare: "250.00",
				account.CategoryGroceries:  "300.00",
				account.CategoryEducation:  "200.00",
				account.CategoryOther:      "250.00",
			},
			remainder: "0.00",
		},
		{
			name:   "partial table leaves remainder on main",
			rules:  "healthcare:30,groceries:50",
			amount: "200",
			want: map[account.Category]string{
				account.CategoryHealthcare: "60.00",
				account.CategoryGroceries:  "100.00",
			},
			remainder: "40.00",
		},
		{
			name:   "rounding leftover stays on main",
			rules:  "healthcare:33.33,groceries:33.33,education:33.33",
			amount: "10",
			want: map[account.Category]string{
				account.CategoryHealthcare: "3.33",
				account.CategoryGroceries:  "3.33",
				account.CategoryEducation:  "3.33",
			},
			remainder: "0.01",
		},
		{
			name:   "half to even",
			rules:  "healthcare:50,groceries:50",
			amount: "0.25",
			want: map[account.Category]string{
				account.CategoryHealthcare: "0.12",
				account.CategoryGroceries:  "0.12",
			},
			remainder: "0.01",
		},
		{
			name:   "over-rounding is trimmed from the last largest share",
			rules:  "healthcare:50,groceries:50",
			amount: "0.03",
			want: map[account.Category]string{
				account.CategoryHealthcare: "0.02",
				account.CategoryGroceries:  "0.01",
			},
			remainder: "0.00",
		},
		{
			name:      "zero shares are dropped",
			rules:     "healthcare:0.1,groceries:10",
			amount:    "1",
			want:      map[account.Category]string{account.CategoryGroceries: "0.10"},
			remainder: "0.90",
		},
		{
			name:      "no rules",
			rules:     "",
			amount:    "50",
			want:      map[account.Category]string{},
			remainder: "50.00",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan, err := mustRules(t, tc.rules).Split(dec(tc.amount), 2)
			require.NoError(t, err)
			assert.Equal(t, tc.want, amounts(plan))
			assert.Equal(t, tc.remainder, plan.Remainder.StringFixed(2))
			assert.True(t, plan.Distributed.Add(plan.Remainder).Equal(dec(tc.amount)))
			assert.False(t, plan.Distributed.GreaterThan(dec(tc.amount)))
		})
	}
}

func TestSplit_Reproducible(t *testing.T) {
	t.Parallel()
	rs := mustRules(t, "other:12.5,healthcare:37.5,groceries:50")
	first, err := rs.Split(dec("99.99"), 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := rs.Split(dec("99.99"), 2)
		require.NoError(t, err)
		assert.Equal(t, amounts(first), amounts(again))
	}
	assert.Equal(t, account.CategoryHealthcare, first.Shares[0].Category, "shares follow canonical order")
}

func TestSplit_ZeroPrecision(t *testing.T) {
	t.Parallel()
	plan, err := mustRules(t, "healthcare:50,groceries:50").Split(dec("5"), 0)
	require.NoError(t, err)
	assert.True(t, plan.Distributed.LessThanOrEqual(dec("5")))
	assert.True(t, plan.Remainder.Add(plan.Distributed).Equal(dec("5")))
}

func TestRuleSet_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		rules RuleSet
	}{
		{"sum above 100", RuleSet{{account.CategoryHealthcare, dec("60")}, {account.CategoryOther, dec("40.01")}}},
		{"negative", RuleSet{{account.CategoryHealthcare, dec("-1")}}},
		{"duplicate", RuleSet{{account.CategoryHealthcare, dec("10")}, {account.CategoryHealthcare, dec("10")}}},
		{"unknown category", RuleSet{{"toys", dec("10")}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tc.rules.Validate(), domain.ErrInvalidAllocation)
			_, err := tc.rules.Split(dec("10"), 2)
			assert.Error(t, err)
		})
	}
}

func TestParseRuleSet(t *testing.T) {
	t.Parallel()
	rs := mustRules(t, " groceries:30 , healthcare:25 ")
	assert.Equal(t, "healthcare:25,groceries:30", rs.String())
	assert.Equal(t, []account.Category{account.CategoryHealthcare, account.CategoryGroceries}, rs.Categories())
	assert.True(t, rs.Total().Equal(dec("55")))

	_, err := ParseRuleSet("healthcare")
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
	_, err = ParseRuleSet("healthcare:abc")
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
	_, err = ParseRuleSet("toys:10")
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
}
