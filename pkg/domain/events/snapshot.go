package events

import "github.com/amirasaad/carefund/pkg/domain/ledger"

// Snapshot converts a ledger entry to its outbound form.
func Snapshot(e *ledger.Entry) EntrySnapshot {
	return EntrySnapshot{
		EntryID:      e.ID,
		AccountID:    e.AccountID,
		Amount:       e.Amount,
		Type:         string(e.Type),
		Reference:    e.Reference,
		Category:     e.Category,
		BalanceAfter: e.BalanceAfter,
	}
}

// Snapshots converts a slice of entries.
func Snapshots(entries []*ledger.Entry) []EntrySnapshot {
	out := make([]EntrySnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, Snapshot(e))
	}
	return out
}
