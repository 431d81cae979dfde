package ledger

import (
	"context"

	"github.com/amirasaad/carefund/infra/repository/gormutil"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ledgerRepository struct {
	db *gorm.DB
}

// New creates a ledger repository bound to db, which may be a transaction.
func New(db *gorm.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(ctx context.Context, entries ...*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		rows = append(rows, toModel(e))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return gormutil.Translate(err, nil, domain.ErrDuplicateReference)
	}
	for i := range rows {
		entries[i].Sequence = rows[i].Seq
	}
	return nil
}

func (r *ledgerRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Entry{}).Where("reference = ?", reference).Count(&count).Error
	if err != nil {
		return false, gormutil.MapGormErrorToDomain(err)
	}
	return count > 0, nil
}

func (r *ledgerRepository) FindByReference(ctx context.Context, reference string) ([]*ledger.Entry, error) {
	var rows []Entry
	err := r.db.WithContext(ctx).Where("reference = ?", reference).Order("seq ASC").Find(&rows).Error
	if err != nil {
		return nil, gormutil.MapGormErrorToDomain(err)
	}
	return toDomainList(rows), nil
}

func (r *ledgerRepository) List(ctx context.Context, filter repository.LedgerFilter) ([]*ledger.Entry, error) {
	var rows []Entry
	q := r.db.WithContext(ctx).Scopes(applyFilter(filter))
	if filter.Ascending {
		q = q.Order("seq ASC")
	} else {
		q = q.Order("seq DESC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, gormutil.MapGormErrorToDomain(err)
	}
	return toDomainList(rows), nil
}

func (r *ledgerRepository) Count(ctx context.Context, filter repository.LedgerFilter) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Entry{}).Scopes(applyFilter(filter)).Count(&count).Error
	return count, gormutil.MapGormErrorToDomain(err)
}

func applyFilter(f repository.LedgerFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Model(&Entry{})
		if f.AccountID != uuid.Nil {
			db = db.Where("account_id = ?", f.AccountID)
		}
		if f.DependentID != uuid.Nil {
			db = db.Where("dependent_id = ?", f.DependentID)
		}
		if f.From != nil {
			db = db.Where("created_at >= ?", *f.From)
		}
		if f.To != nil {
			db = db.Where("created_at < ?", *f.To)
		}
		if f.Category != "" {
			db = db.Where("category = ?", f.Category)
		}
		if f.Type != "" {
			db = db.Where("type = ?", string(f.Type))
		}
		if f.ReferencePrefix != "" {
			db = db.Where("reference LIKE ?", escapeLike(f.ReferencePrefix)+"%")
		}
		return db
	}
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func toModel(e *ledger.Entry) Entry {
	return Entry{
		ID:           e.ID,
		AccountID:    e.AccountID,
		DependentID:  e.DependentID,
		Amount:       e.Amount,
		Type:         string(e.Type),
		Reference:    e.Reference,
		Category:     e.Category,
		Description:  e.Description,
		BalanceAfter: e.BalanceAfter,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

func toDomainList(rows []Entry) []*ledger.Entry {
	out := make([]*ledger.Entry, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		out = append(out, &ledger.Entry{
			ID:           row.ID,
			Sequence:     row.Seq,
			AccountID:    row.AccountID,
			DependentID:  row.DependentID,
			Amount:       row.Amount,
			Type:         ledger.EntryType(row.Type),
			Reference:    row.Reference,
			Category:     row.Category,
			Description:  row.Description,
			BalanceAfter: row.BalanceAfter,
			Metadata:     row.Metadata,
			CreatedAt:    row.CreatedAt,
		})
	}
	return out
}
