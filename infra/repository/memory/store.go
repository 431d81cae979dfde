// Package memory is an in-process storage backend with the same contracts as
// the Postgres repositories: units of work are serialized, commit atomically,
// and nested units roll back to a savepoint. It backs local runs
// (DB_DRIVER=memory) and the service tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
)

type rejectionKey struct {
	reference string
	funder    uuid.UUID
}

type linkKey struct {
	funder    uuid.UUID
	dependent uuid.UUID
}

type state struct {
	accounts      map[uuid.UUID]account.Account
	entries       []ledger.Entry
	entryKeys     map[string]struct{}
	confirmations map[string]deposit.Confirmation
	rejections    map[rejectionKey]deposit.Confirmation
	rules         map[uuid.UUID]allocation.RuleSet
	links         map[linkKey]struct{}
	seq           int64
}

func newState() *state {
	return &state{
		accounts:      make(map[uuid.UUID]account.Account),
		entryKeys:     make(map[string]struct{}),
		confirmations: make(map[string]deposit.Confirmation),
		rejections:    make(map[rejectionKey]deposit.Confirmation),
		rules:         make(map[uuid.UUID]allocation.RuleSet),
		links:         make(map[linkKey]struct{}),
	}
}

// clone copies the containers; stored values are never mutated in place.
func (s *state) clone() *state {
	return &state{
		accounts:      maps.Clone(s.accounts),
		entries:       slices.Clone(s.entries),
		entryKeys:     maps.Clone(s.entryKeys),
		confirmations: maps.Clone(s.confirmations),
		rejections:    maps.Clone(s.rejections),
		rules:         maps.Clone(s.rules),
		links:         maps.Clone(s.links),
		seq:           s.seq,
	}
}

// Store owns the committed state.
type Store struct {
	mu        sync.RWMutex
	committed *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{committed: newState()}
}

// UoW implements repository.UnitOfWork over a Store. The root UoW has no
// working state; the one passed to Do's callback does.
type UoW struct {
	store        *Store
	work         *state
	repoRegistry map[reflect.Type]func(*session) any
}

// NewUoW creates a root unit of work on a fresh store.
func NewUoW() *UoW {
	return NewUoWWithStore(NewStore())
}

// NewUoWWithStore creates a root unit of work on an existing store.
func NewUoWWithStore(store *Store) *UoW {
	return &UoW{
		store: store,
		repoRegistry: map[reflect.Type]func(*session) any{
			repository.AccountRepositoryType:    func(s *session) any { return &accountRepository{s} },
			repository.LedgerRepositoryType:     func(s *session) any { return &ledgerRepository{s} },
			repository.DepositRepositoryType:    func(s *session) any { return &depositRepository{s} },
			repository.AllocationRepositoryType: func(s *session) any { return &allocationRepository{s} },
			repository.LinkRepositoryType:       func(s *session) any { return &linkRepository{s} },
		},
	}
}

// Do runs fn against a private copy of the committed state and publishes it
// only when fn succeeds. Root units hold the store's write lock for their
// whole duration, which serializes them. A nested Do restores the outer
// working state if fn fails.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.work != nil {
		savepoint := u.work.clone()
		defer func() {
			if r := recover(); r != nil {
				*u.work = *savepoint
				panic(r)
			}
			if err != nil {
				*u.work = *savepoint
			}
		}()
		return fn(&UoW{store: u.store, work: u.work, repoRegistry: u.repoRegistry})
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	work := u.store.committed.clone()
	if err := fn(&UoW{store: u.store, work: work, repoRegistry: u.repoRegistry}); err != nil {
		return err
	}
	u.store.committed = work
	return nil
}

// GetRepository returns the repository registered for repoType.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(&session{store: u.store, work: u.work}), nil
}

func (u *UoW) AccountRepository() (repository.AccountRepository, error) {
	return &accountRepository{&session{store: u.store, work: u.work}}, nil
}

func (u *UoW) LedgerRepository() (repository.LedgerRepository, error) {
	return &ledgerRepository{&session{store: u.store, work: u.work}}, nil
}

func (u *UoW) DepositRepository() (repository.DepositRepository, error) {
	return &depositRepository{&session{store: u.store, work: u.work}}, nil
}

func (u *UoW) AllocationRepository() (repository.AllocationRepository, error) {
	return &allocationRepository{&session{store: u.store, work: u.work}}, nil
}

func (u *UoW) LinkRepository() (repository.LinkRepository, error) {
	return &linkRepository{&session{store: u.store, work: u.work}}, nil
}

var _ repository.UnitOfWork = (*UoW)(nil)

// session routes repository calls either to a unit's working state or,
// outside a unit, to the committed state under the store lock.
type session struct {
	store *Store
	work  *state
}

func (s *session) read(fn func(st *state) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return fn(s.store.committed)
}

// write outside a unit behaves like an autocommit statement.
func (s *session) write(fn func(st *state) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	work := s.store.committed.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.store.committed = work
	return nil
}
