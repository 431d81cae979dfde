package account

import (
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuilder_Build(t *testing.T) {
	t.Parallel()
	dependent := uuid.New()
	parent := uuid.New()

	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{"main account", New().WithDependent(dependent), nil},
		{"sub account", New().WithDependent(dependent).AsSubAccount(parent, CategoryHealthcare), nil},
		{"missing dependent", New(), domain.ErrValidation},
		{"negative balance", New().WithDependent(dependent).WithBalance(dec("-1")), domain.ErrInsufficientFunds},
		{"bad category", New().WithDependent(dependent).AsSubAccount(parent, "toys"), domain.ErrInvalidCategory},
		{"sub without parent", New().WithDependent(dependent).AsSubAccount(uuid.Nil, CategoryOther), domain.ErrValidation},
		{"bad status", New().WithDependent(dependent).WithStatus("closed"), domain.ErrInvalidStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			acc, err := tc.builder.Build()
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, acc.Balance.IsZero())
			assert.Equal(t, StatusActive, acc.Status)
		})
	}
}

func TestAccount_Apply(t *testing.T) {
	t.Parallel()
	acc, err := New().WithDependent(uuid.New()).WithBalance(dec("100")).Build()
	require.NoError(t, err)

	next, err := acc.Apply(dec("-40.50"), StatusActive)
	require.NoError(t, err)
	assert.True(t, next.Equal(dec("59.50")))
	assert.True(t, acc.Balance.Equal(dec("100")), "apply must not mutate")

	_, err = acc.Apply(dec("-100.01"), StatusActive)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	acc.Status = StatusFrozen
	_, err = acc.Apply(dec("1"), StatusActive)
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)
	_, err = acc.Apply(dec("1"), StatusFrozen)
	assert.ErrorIs(t, err, domain.ErrAccountNotActive, "frozen accounts never mutate")
}

func TestNewSet(t *testing.T) {
	t.Parallel()
	dependent := uuid.New()
	set, err := NewSet(dependent, uuid.Nil, "USD",
		[]Category{CategoryHealthcare, CategoryGroceries, CategoryHealthcare})
	require.NoError(t, err)

	require.Len(t, set.Subs, 2)
	assert.True(t, set.Main.IsMainAccount)
	assert.Nil(t, set.Main.CaregiverID)
	for _, sub := range set.Subs {
		require.NotNil(t, sub.ParentAccountID)
		assert.Equal(t, set.Main.ID, *sub.ParentAccountID)
		assert.Equal(t, dependent, sub.DependentID)
	}
	g, ok := set.Sub(CategoryGroceries)
	require.True(t, ok)
	assert.Equal(t, "groceries", g.Label())
	assert.Len(t, set.All(), 3)
	assert.True(t, set.Total().IsZero())
}

func TestParseCategory(t *testing.T) {
	t.Parallel()
	tests := map[string]Category{
		"healthcare": CategoryHealthcare,
		"Baby Care":  CategoryBabyCare,
		"baby_care":  CategoryBabyCare,
		" OTHER ":    CategoryOther,
	}
	for in, want := range tests {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseCategory("toys")
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	cats, err := ParseCategories([]string{"groceries", "healthcare", "groceries"})
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryGroceries, CategoryHealthcare}, cats)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()
	s, err := ParseStatus("Frozen")
	require.NoError(t, err)
	assert.Equal(t, StatusFrozen, s)
	assert.False(t, s.CanMutate())
	_, err = ParseStatus("closed")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
