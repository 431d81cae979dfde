// Package money holds currency codes and fixed-point amount helpers.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/shopspring/decimal"
)

// Code is an ISO 4217 currency code.
type Code string

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency Code = "USD"

var codeFormat = regexp.MustCompile(`^[A-Z]{3}$`)

// zero-decimal and three-decimal currencies; everything else uses two.
var precisions = map[Code]int32{
	"JPY": 0,
	"KRW": 0,
	"UGX": 0,
	"XAF": 0,
	"XOF": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// ParseCode normalizes and validates a currency code. An empty string yields
// DefaultCurrency.
func ParseCode(s string) (Code, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultCurrency, nil
	}
	if !codeFormat.MatchString(s) {
		return "", fmt.Errorf("currency %q: %w", s, domain.ErrValidation)
	}
	return Code(s), nil
}

// Precision returns the number of minor-unit decimal places for the currency.
func (c Code) Precision() int32 {
	if p, ok := precisions[c]; ok {
		return p
	}
	return 2
}

func (c Code) String() string { return string(c) }

// MinorUnit is the smallest representable amount in the currency (0.01 for USD).
func (c Code) MinorUnit() decimal.Decimal {
	return decimal.New(1, -c.Precision())
}

// ValidateAmount checks an amount is positive and carries no more decimal
// places than the currency allows.
func ValidateAmount(amount decimal.Decimal, c Code) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(c.Precision())) {
		return fmt.Errorf("amount %s exceeds %d decimal places for %s: %w",
			amount, c.Precision(), c, domain.ErrValidation)
	}
	return nil
}
