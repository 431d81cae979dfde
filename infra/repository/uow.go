// Package repository wires the GORM repositories behind a Unit of Work.
package repository

import (
	"context"
	"fmt"
	"reflect"

	accountrepo "github.com/amirasaad/carefund/infra/repository/account"
	allocationrepo "github.com/amirasaad/carefund/infra/repository/allocation"
	depositrepo "github.com/amirasaad/carefund/infra/repository/deposit"
	ledgerrepo "github.com/amirasaad/carefund/infra/repository/ledger"
	linkrepo "github.com/amirasaad/carefund/infra/repository/link"
	"github.com/amirasaad/carefund/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides transaction boundary and repository access in one abstraction.
// The root UoW holds only db; a UoW handed to Do's callback also holds tx.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			repository.AccountRepositoryType:    func(db *gorm.DB) any { return accountrepo.New(db) },
			repository.LedgerRepositoryType:     func(db *gorm.DB) any { return ledgerrepo.New(db) },
			repository.DepositRepositoryType:    func(db *gorm.DB) any { return depositrepo.New(db) },
			repository.AllocationRepositoryType: func(db *gorm.DB) any { return allocationrepo.New(db) },
			repository.LinkRepositoryType:       func(db *gorm.DB) any { return linkrepo.New(db) },
		},
	}
}

// Do runs fn in a transaction. On a UoW that is already transactional, GORM
// turns the nested call into a savepoint.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.session().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, repoRegistry: u.repoRegistry})
	})
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// GetRepository returns the repository registered for repoType, bound to the
// current session.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(u.session()), nil
}

func (u *UoW) AccountRepository() (repository.AccountRepository, error) {
	return get[repository.AccountRepository](u, repository.AccountRepositoryType)
}

func (u *UoW) LedgerRepository() (repository.LedgerRepository, error) {
	return get[repository.LedgerRepository](u, repository.LedgerRepositoryType)
}

func (u *UoW) DepositRepository() (repository.DepositRepository, error) {
	return get[repository.DepositRepository](u, repository.DepositRepositoryType)
}

func (u *UoW) AllocationRepository() (repository.AllocationRepository, error) {
	return get[repository.AllocationRepository](u, repository.AllocationRepositoryType)
}

func (u *UoW) LinkRepository() (repository.LinkRepository, error) {
	return get[repository.LinkRepository](u, repository.LinkRepositoryType)
}

func get[T any](u *UoW, t reflect.Type) (T, error) {
	var zero T
	repoAny, err := u.GetRepository(t)
	if err != nil {
		return zero, err
	}
	repo, ok := repoAny.(T)
	if !ok {
		return zero, fmt.Errorf("repository for %v has type %T", t, repoAny)
	}
	return repo, nil
}

var _ repository.UnitOfWork = (*UoW)(nil)
