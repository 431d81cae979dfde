package link

import (
	"context"
	"time"

	"github.com/amirasaad/carefund/infra/repository/gormutil"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type linkRepository struct {
	db *gorm.DB
}

// New creates a funder/dependent link repository bound to db.
func New(db *gorm.DB) repository.LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) IsLinked(ctx context.Context, funderID, dependentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&FunderDependentLink{}).
		Where("funder_id = ? AND dependent_id = ?", funderID, dependentID).
		Count(&count).Error
	if err != nil {
		return false, gormutil.MapGormErrorToDomain(err)
	}
	return count > 0, nil
}

func (r *linkRepository) Link(ctx context.Context, funderID, dependentID uuid.UUID) error {
	row := FunderDependentLink{FunderID: funderID, DependentID: dependentID, CreatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return gormutil.MapGormErrorToDomain(err)
}

func (r *linkRepository) Unlink(ctx context.Context, funderID, dependentID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("funder_id = ? AND dependent_id = ?", funderID, dependentID).
		Delete(&FunderDependentLink{}).Error
	return gormutil.MapGormErrorToDomain(err)
}
