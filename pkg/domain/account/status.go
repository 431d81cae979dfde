package account

import (
	"fmt"
	"strings"

	"github.com/amirasaad/carefund/pkg/domain"
)

// Status controls whether an account accepts mutations.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusFrozen   Status = "frozen"
)

// CanMutate reports whether balance-affecting operations are allowed.
func (s Status) CanMutate() bool { return s == StatusActive }

func (s Status) String() string { return string(s) }

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusFrozen:
		return st, nil
	default:
		return "", fmt.Errorf("%q: %w", s, domain.ErrInvalidStatus)
	}
}
