package deposit

import (
	"context"

	"github.com/amirasaad/carefund/infra/repository/gormutil"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/domain/money"
	"github.com/amirasaad/carefund/pkg/repository"
	"gorm.io/gorm"
)

type depositRepository struct {
	db *gorm.DB
}

// New creates a deposit confirmation repository bound to db.
func New(db *gorm.DB) repository.DepositRepository {
	return &depositRepository{db: db}
}

func (r *depositRepository) Create(ctx context.Context, c *deposit.Confirmation) error {
	row := toModel(c)
	err := r.db.WithContext(ctx).Create(&row).Error
	return gormutil.Translate(err, nil, domain.ErrDuplicateReference)
}

func (r *depositRepository) GetByReference(ctx context.Context, paymentReference string) (*deposit.Confirmation, error) {
	var row Confirmation
	err := r.db.WithContext(ctx).First(&row, "payment_reference = ?", paymentReference).Error
	if err != nil {
		return nil, gormutil.MapGormErrorToDomain(err)
	}
	return toDomain(&row), nil
}

func (r *depositRepository) Update(ctx context.Context, c *deposit.Confirmation) error {
	res := r.db.WithContext(ctx).Model(&Confirmation{}).Where("id = ?", c.ID).Updates(map[string]any{
		"state":              string(c.State),
		"reason":             c.Reason,
		"ledger_entry_id":    c.LedgerEntryID,
		"new_balance":        c.NewBalance,
		"distribution_error": c.DistributionError,
		"updated_at":         c.UpdatedAt,
	})
	if res.Error != nil {
		return gormutil.MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *depositRepository) RecordRejection(ctx context.Context, c *deposit.Confirmation) error {
	row := Rejection{
		ID:               c.ID,
		PaymentReference: c.PaymentReference,
		FunderID:         c.FunderID,
		MainAccountID:    c.MainAccountID,
		DependentID:      c.DependentID,
		Amount:           c.Amount,
		Currency:         c.Currency.String(),
		Reason:           c.Reason,
		CreatedAt:        c.CreatedAt,
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	return gormutil.Translate(err, nil, domain.ErrDuplicateReference)
}

func (r *depositRepository) Rejections(ctx context.Context, paymentReference string) ([]*deposit.Confirmation, error) {
	var rows []Rejection
	err := r.db.WithContext(ctx).
		Where("payment_reference = ?", paymentReference).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, gormutil.MapGormErrorToDomain(err)
	}
	out := make([]*deposit.Confirmation, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		out = append(out, &deposit.Confirmation{
			ID:               row.ID,
			PaymentReference: row.PaymentReference,
			MainAccountID:    row.MainAccountID,
			DependentID:      row.DependentID,
			FunderID:         row.FunderID,
			Amount:           row.Amount,
			Currency:         money.Code(row.Currency),
			State:            deposit.StateRejected,
			Reason:           row.Reason,
			CreatedAt:        row.CreatedAt,
			UpdatedAt:        row.CreatedAt,
		})
	}
	return out, nil
}

func toModel(c *deposit.Confirmation) Confirmation {
	return Confirmation{
		ID:                c.ID,
		PaymentReference:  c.PaymentReference,
		MainAccountID:     c.MainAccountID,
		DependentID:       c.DependentID,
		FunderID:          c.FunderID,
		Amount:            c.Amount,
		Currency:          c.Currency.String(),
		State:             string(c.State),
		Reason:            c.Reason,
		LedgerEntryID:     c.LedgerEntryID,
		NewBalance:        c.NewBalance,
		DistributionError: c.DistributionError,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func toDomain(row *Confirmation) *deposit.Confirmation {
	return &deposit.Confirmation{
		ID:                row.ID,
		PaymentReference:  row.PaymentReference,
		MainAccountID:     row.MainAccountID,
		DependentID:       row.DependentID,
		FunderID:          row.FunderID,
		Amount:            row.Amount,
		Currency:          money.Code(row.Currency),
		State:             deposit.State(row.State),
		Reason:            row.Reason,
		LedgerEntryID:     row.LedgerEntryID,
		NewBalance:        row.NewBalance,
		DistributionError: row.DistributionError,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}
