package account

import (
	"context"
	"sort"
	"time"

	"github.com/amirasaad/carefund/infra/repository/gormutil"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountRepository struct {
	db *gorm.DB
}

// New creates an account repository bound to db, which may be a transaction.
func New(db *gorm.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, accounts ...*account.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, toModel(a))
	}
	err := r.db.WithContext(ctx).Create(&rows).Error
	return gormutil.Translate(err, nil, domain.ErrDuplicateAccount)
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var row Account
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, gormutil.Translate(err, domain.ErrAccountNotFound, nil)
	}
	return toDomain(&row), nil
}

func (r *accountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var row Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, gormutil.Translate(err, domain.ErrAccountNotFound, nil)
	}
	return toDomain(&row), nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.update(ctx, id, map[string]any{
		"balance":    balance,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	})
}

func (r *accountRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status account.Status) error {
	return r.update(ctx, id, map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
}

func (r *accountRepository) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return gormutil.MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) FindMainByDependent(ctx context.Context, dependentID uuid.UUID) (*account.Account, error) {
	var row Account
	err := r.db.WithContext(ctx).
		Where("dependent_id = ? AND is_main_account = ?", dependentID, true).
		First(&row).Error
	if err != nil {
		return nil, gormutil.Translate(err, domain.ErrAccountNotFound, nil)
	}
	return toDomain(&row), nil
}

func (r *accountRepository) ListByDependent(ctx context.Context, dependentID uuid.UUID) ([]*account.Account, error) {
	var rows []Account
	if err := r.db.WithContext(ctx).Where("dependent_id = ?", dependentID).Find(&rows).Error; err != nil {
		return nil, gormutil.MapGormErrorToDomain(err)
	}
	out := make([]*account.Account, 0, len(rows))
	for i := range rows {
		out = append(out, toDomain(&rows[i]))
	}
	SortAccounts(out)
	return out, nil
}

// SortAccounts orders a main account first, then sub-accounts by category.
func SortAccounts(accts []*account.Account) {
	sort.SliceStable(accts, func(i, j int) bool {
		if accts[i].IsMainAccount != accts[j].IsMainAccount {
			return accts[i].IsMainAccount
		}
		return accts[i].Category.Rank() < accts[j].Category.Rank()
	})
}

func toModel(a *account.Account) Account {
	var category *string
	if !a.IsMainAccount {
		c := string(a.Category)
		category = &c
	}
	return Account{
		ID:              a.ID,
		DependentID:     a.DependentID,
		CaregiverID:     a.CaregiverID,
		IsMainAccount:   a.IsMainAccount,
		Category:        category,
		ParentAccountID: a.ParentAccountID,
		Currency:        a.Currency.String(),
		Balance:         a.Balance,
		Status:          string(a.Status),
		Version:         a.Version,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toDomain(row *Account) *account.Account {
	a := &account.Account{
		ID:              row.ID,
		DependentID:     row.DependentID,
		CaregiverID:     row.CaregiverID,
		IsMainAccount:   row.IsMainAccount,
		ParentAccountID: row.ParentAccountID,
		Currency:        money.Code(row.Currency),
		Balance:         row.Balance,
		Status:          account.Status(row.Status),
		Version:         row.Version,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.Category != nil {
		a.Category = account.Category(*row.Category)
	}
	return a
}
