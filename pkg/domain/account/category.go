package account

import (
	"fmt"
	"strings"

	"github.com/amirasaad/carefund/pkg/domain"
)

// Category tags a sub-account with the purpose its funds are budgeted for.
type Category string

const (
	CategoryHealthcare    Category = "healthcare"
	CategoryGroceries     Category = "groceries"
	CategoryEducation     Category = "education"
	CategoryClothing      Category = "clothing"
	CategoryBabyCare      Category = "baby-care"
	CategoryEntertainment Category = "entertainment"
	CategoryPregnancy     Category = "pregnancy"
	CategoryOther         Category = "other"
)

var allCategories = []Category{
	CategoryHealthcare,
	CategoryGroceries,
	CategoryEducation,
	CategoryClothing,
	CategoryBabyCare,
	CategoryEntertainment,
	CategoryPregnancy,
	CategoryOther,
}

// Categories returns the fixed category set in its canonical order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Rank is the category's position in the canonical order, or -1.
func (c Category) Rank() int {
	for i, cat := range allCategories {
		if cat == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c belongs to the fixed set.
func (c Category) Valid() bool { return c.Rank() >= 0 }

func (c Category) String() string { return string(c) }

// ParseCategory accepts the canonical names plus a few spellings seen in
// client payloads ("baby_care", "Baby Care").
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	c := Category(norm)
	if !c.Valid() {
		return "", fmt.Errorf("%q: %w", s, domain.ErrInvalidCategory)
	}
	return c, nil
}

// ParseCategories parses and de-duplicates a list while keeping the input order.
func ParseCategories(values []string) ([]Category, error) {
	seen := make(map[Category]struct{}, len(values))
	out := make([]Category, 0, len(values))
	for _, v := range values {
		c, err := ParseCategory(v)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
