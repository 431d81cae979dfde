package repository

import (
	"context"
	"reflect"
)

// UnitOfWork defines the contract for transactional work and type-safe
// repository access.
//
// Do runs fn inside one transaction. Calling Do on the UnitOfWork handed to
// fn opens a nested unit (a savepoint): an error from the inner fn rolls back
// only the inner work, and the outer unit can still commit.
//
// Repositories obtained from a UnitOfWork passed to fn share its transaction.
// Repositories obtained from the root UnitOfWork run without one and are only
// meant for reads.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// GetRepository returns a repository of the requested interface type bound
	// to the current session.
	//
	//	repoAny, err := uow.GetRepository(reflect.TypeOf((*LedgerRepository)(nil)).Elem())
	GetRepository(repoType reflect.Type) (any, error)

	AccountRepository() (AccountRepository, error)
	LedgerRepository() (LedgerRepository, error)
	DepositRepository() (DepositRepository, error)
	AllocationRepository() (AllocationRepository, error)
	LinkRepository() (LinkRepository, error)
}

// Interface types used as GetRepository keys.
var (
	AccountRepositoryType    = reflect.TypeOf((*AccountRepository)(nil)).Elem()
	LedgerRepositoryType     = reflect.TypeOf((*LedgerRepository)(nil)).Elem()
	DepositRepositoryType    = reflect.TypeOf((*DepositRepository)(nil)).Elem()
	AllocationRepositoryType = reflect.TypeOf((*AllocationRepository)(nil)).Elem()
	LinkRepositoryType       = reflect.TypeOf((*LinkRepository)(nil)).Elem()
)
