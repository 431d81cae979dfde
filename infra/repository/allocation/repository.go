package allocation

import (
	"context"
	"time"

	"github.com/amirasaad/carefund/infra/repository/gormutil"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type allocationRepository struct {
	db *gorm.DB
}

// New creates an allocation rule repository bound to db.
func New(db *gorm.DB) repository.AllocationRepository {
	return &allocationRepository{db: db}
}

func (r *allocationRepository) RulesFor(ctx context.Context, dependentID uuid.UUID) (allocation.RuleSet, bool, error) {
	var rows []Rule
	if err := r.db.WithContext(ctx).Where("dependent_id = ?", dependentID).Find(&rows).Error; err != nil {
		return nil, false, gormutil.MapGormErrorToDomain(err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	rules := make(allocation.RuleSet, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, allocation.Rule{
			Category:   account.Category(row.Category),
			Percentage: row.Percentage,
		})
	}
	return rules.Sorted(), true, nil
}

// Replace swaps the dependent's table. Call it inside a unit of work so the
// delete and insert commit together.
func (r *allocationRepository) Replace(ctx context.Context, dependentID uuid.UUID, rules allocation.RuleSet) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("dependent_id = ?", dependentID).Delete(&Rule{}).Error; err != nil {
		return gormutil.MapGormErrorToDomain(err)
	}
	if len(rules) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		rows = append(rows, Rule{
			ID:          uuid.New(),
			DependentID: dependentID,
			Category:    string(rule.Category),
			Percentage:  rule.Percentage,
			CreatedAt:   now,
		})
	}
	return gormutil.MapGormErrorToDomain(db.Create(&rows).Error)
}
