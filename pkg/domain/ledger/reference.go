package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/google/uuid"
)

const (
	transferPrefix  = "TRANSFER_"
	reversalPrefix  = "REVERSAL_"
	payoutPrefix    = "PAYOUT_"
	distributionTag = "distribution"
	refSeparator    = ":"
)

// ValidateExternalRef rejects a payment reference that could collide with a
// reference derived by the ledger itself: derived references join their parts
// with ':' and internal ones carry a reserved prefix.
func ValidateExternalRef(ref string) error {
	if ref == "" {
		return domain.ErrMissingReference
	}
	if strings.Contains(ref, refSeparator) {
		return fmt.Errorf("payment reference %q must not contain %q: %w", ref, refSeparator, domain.ErrValidation)
	}
	upper := strings.ToUpper(ref)
	for _, prefix := range []string{transferPrefix, reversalPrefix, payoutPrefix} {
		if strings.HasPrefix(upper, prefix) {
			return fmt.Errorf("payment reference %q uses reserved prefix %s: %w", ref, prefix, domain.ErrValidation)
		}
	}
	return nil
}

// DistributionRef is the reference of the main-account debit of a distribution.
func DistributionRef(source string) string {
	return source + refSeparator + distributionTag
}

// AllocationRef is the reference of a sub-account credit of a distribution.
func AllocationRef(source, category string) string {
	return source + refSeparator + category
}

// TransferRef builds a transfer reference. A client idempotency key is used
// verbatim, otherwise a timestamp plus a short random suffix.
func TransferRef(now time.Time, idempotencyKey string) string {
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		return transferPrefix + key
	}
	return fmt.Sprintf("%s%d_%s", transferPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// IsTransferRef reports whether ref was produced by TransferRef.
func IsTransferRef(ref string) bool {
	return strings.HasPrefix(ref, transferPrefix)
}

// ReversalRef is the reference of the entries undoing original.
func ReversalRef(original string) string {
	return reversalPrefix + original
}

// PayoutRef builds a payout reference from a caller-supplied one, or from a
// timestamp when none is given.
func PayoutRef(now time.Time, reference string) string {
	if ref := strings.TrimSpace(reference); ref != "" {
		if strings.HasPrefix(ref, payoutPrefix) {
			return ref
		}
		return payoutPrefix + ref
	}
	return fmt.Sprintf("%s%d_%s", payoutPrefix, now.UnixMilli(), uuid.NewString()[:8])
}
