package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rule represents an allocation_rules row.
type Rule struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	DependentID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_allocation_rules_dependent_category,priority:1"`
	Category    string          `gorm:"type:varchar(32);not null;uniqueIndex:ux_allocation_rules_dependent_category,priority:2"`
	Percentage  decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	CreatedAt   time.Time
}

// TableName specifies the table name for the Rule model.
func (Rule) TableName() string {
	return "allocation_rules"
}
