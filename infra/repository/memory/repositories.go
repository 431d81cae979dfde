package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	_ repository.AccountRepository    = (*accountRepository)(nil)
	_ repository.LedgerRepository     = (*ledgerRepository)(nil)
	_ repository.DepositRepository    = (*depositRepository)(nil)
	_ repository.AllocationRepository = (*allocationRepository)(nil)
	_ repository.LinkRepository       = (*linkRepository)(nil)
)

type accountRepository struct{ s *session }

func (r *accountRepository) Create(_ context.Context, accounts ...*account.Account) error {
	return r.s.write(func(st *state) error {
		for _, a := range accounts {
			if _, exists := st.accounts[a.ID]; exists {
				return domain.ErrAlreadyExists
			}
			for _, existing := range st.accounts {
				if a.IsMainAccount && existing.IsMainAccount && existing.DependentID == a.DependentID {
					return domain.ErrDuplicateAccount
				}
				if !a.IsMainAccount && !existing.IsMainAccount &&
					*existing.ParentAccountID == *a.ParentAccountID && existing.Category == a.Category {
					return domain.ErrDuplicateAccount
				}
			}
			st.accounts[a.ID] = *a
		}
		return nil
	})
}

func (r *accountRepository) Get(_ context.Context, id uuid.UUID) (*account.Account, error) {
	var out *account.Account
	err := r.s.read(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: units already run one at a time.
func (r *accountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return r.Get(ctx, id)
}

func (r *accountRepository) UpdateBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.s.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.Balance = balance
		a.Version++
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		return nil
	})
}

func (r *accountRepository) UpdateStatus(_ context.Context, id uuid.UUID, status account.Status) error {
	return r.s.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.Status = status
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		return nil
	})
}

func (r *accountRepository) FindMainByDependent(_ context.Context, dependentID uuid.UUID) (*account.Account, error) {
	var out *account.Account
	err := r.s.read(func(st *state) error {
		for _, a := range st.accounts {
			if a.IsMainAccount && a.DependentID == dependentID {
				found := a
				out = &found
				return nil
			}
		}
		return domain.ErrAccountNotFound
	})
	return out, err
}

func (r *accountRepository) ListByDependent(_ context.Context, dependentID uuid.UUID) ([]*account.Account, error) {
	var out []*account.Account
	err := r.s.read(func(st *state) error {
		for _, a := range st.accounts {
			if a.DependentID == dependentID {
				found := a
				out = append(out, &found)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsMainAccount != out[j].IsMainAccount {
			return out[i].IsMainAccount
		}
		return out[i].Category.Rank() < out[j].Category.Rank()
	})
	return out, err
}

type ledgerRepository struct{ s *session }

func entryKey(e *ledger.Entry) string {
	return e.Reference + "|" + e.AccountID.String()
}

func (r *ledgerRepository) Append(_ context.Context, entries ...*ledger.Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return r.s.write(func(st *state) error {
		for _, e := range entries {
			if _, dup := st.entryKeys[entryKey(e)]; dup {
				return domain.ErrDuplicateReference
			}
		}
		for _, e := range entries {
			st.seq++
			e.Sequence = st.seq
			st.entryKeys[entryKey(e)] = struct{}{}
			st.entries = append(st.entries, *e)
		}
		return nil
	})
}

func (r *ledgerRepository) ExistsByReference(_ context.Context, reference string) (bool, error) {
	found := false
	err := r.s.read(func(st *state) error {
		for i := range st.entries {
			if st.entries[i].Reference == reference {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *ledgerRepository) FindByReference(ctx context.Context, reference string) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	err := r.s.read(func(st *state) error {
		for i := range st.entries {
			if st.entries[i].Reference == reference {
				e := st.entries[i]
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

func (r *ledgerRepository) List(_ context.Context, f repository.LedgerFilter) ([]*ledger.Entry, error) {
	var matched []*ledger.Entry
	err := r.s.read(func(st *state) error {
		matched = filterEntries(st.entries, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !f.Ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []*ledger.Entry{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (r *ledgerRepository) Count(_ context.Context, f repository.LedgerFilter) (int64, error) {
	var n int64
	err := r.s.read(func(st *state) error {
		n = int64(len(filterEntries(st.entries, f)))
		return nil
	})
	return n, err
}

// filterEntries returns copies in sequence order.
func filterEntries(entries []ledger.Entry, f repository.LedgerFilter) []*ledger.Entry {
	out := make([]*ledger.Entry, 0)
	for i := range entries {
		e := entries[i]
		switch {
		case f.AccountID != uuid.Nil && e.AccountID != f.AccountID:
			continue
		case f.DependentID != uuid.Nil && e.DependentID != f.DependentID:
			continue
		case f.From != nil && e.CreatedAt.Before(*f.From):
			continue
		case f.To != nil && !e.CreatedAt.Before(*f.To):
			continue
		case f.Category != "" && e.Category != f.Category:
			continue
		case f.Type != "" && e.Type != f.Type:
			continue
		case f.ReferencePrefix != "" && !strings.HasPrefix(e.Reference, f.ReferencePrefix):
			continue
		}
		out = append(out, &e)
	}
	return out
}

type depositRepository struct{ s *session }

func (r *depositRepository) Create(_ context.Context, c *deposit.Confirmation) error {
	return r.s.write(func(st *state) error {
		if _, dup := st.confirmations[c.PaymentReference]; dup {
			return domain.ErrDuplicateReference
		}
		st.confirmations[c.PaymentReference] = *c
		return nil
	})
}

func (r *depositRepository) GetByReference(_ context.Context, paymentReference string) (*deposit.Confirmation, error) {
	var out *deposit.Confirmation
	err := r.s.read(func(st *state) error {
		c, ok := st.confirmations[paymentReference]
		if !ok {
			return domain.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *depositRepository) Update(_ context.Context, c *deposit.Confirmation) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.confirmations[c.PaymentReference]; !ok {
			return domain.ErrNotFound
		}
		st.confirmations[c.PaymentReference] = *c
		return nil
	})
}

func (r *depositRepository) RecordRejection(_ context.Context, c *deposit.Confirmation) error {
	key := rejectionKey{reference: c.PaymentReference, funder: c.FunderID}
	return r.s.write(func(st *state) error {
		if _, dup := st.rejections[key]; dup {
			return domain.ErrDuplicateReference
		}
		st.rejections[key] = *c
		return nil
	})
}

func (r *depositRepository) Rejections(_ context.Context, paymentReference string) ([]*deposit.Confirmation, error) {
	var out []*deposit.Confirmation
	err := r.s.read(func(st *state) error {
		for key, c := range st.rejections {
			if key.reference == paymentReference {
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type allocationRepository struct{ s *session }

func (r *allocationRepository) RulesFor(_ context.Context, dependentID uuid.UUID) (allocation.RuleSet, bool, error) {
	var (
		out   allocation.RuleSet
		found bool
	)
	err := r.s.read(func(st *state) error {
		rules, ok := st.rules[dependentID]
		if ok && len(rules) > 0 {
			out, found = rules.Sorted(), true
		}
		return nil
	})
	return out, found, err
}

func (r *allocationRepository) Replace(_ context.Context, dependentID uuid.UUID, rules allocation.RuleSet) error {
	return r.s.write(func(st *state) error {
		if len(rules) == 0 {
			delete(st.rules, dependentID)
			return nil
		}
		st.rules[dependentID] = rules.Sorted()
		return nil
	})
}

type linkRepository struct{ s *session }

func (r *linkRepository) IsLinked(_ context.Context, funderID, dependentID uuid.UUID) (bool, error) {
	linked := false
	err := r.s.read(func(st *state) error {
		_, linked = st.links[linkKey{funderID, dependentID}]
		return nil
	})
	return linked, err
}

func (r *linkRepository) Link(_ context.Context, funderID, dependentID uuid.UUID) error {
	return r.s.write(func(st *state) error {
		st.links[linkKey{funderID, dependentID}] = struct{}{}
		return nil
	})
}

func (r *linkRepository) Unlink(_ context.Context, funderID, dependentID uuid.UUID) error {
	return r.s.write(func(st *state) error {
		delete(st.links, linkKey{funderID, dependentID})
		return nil
	})
}
