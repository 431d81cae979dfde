package link

import (
	"time"

	"github.com/google/uuid"
)

// FunderDependentLink represents a funder_dependent_links row.
type FunderDependentLink struct {
	FunderID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	DependentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt   time.Time
}

// TableName specifies the table name for the FunderDependentLink model.
func (FunderDependentLink) TableName() string {
	return "funder_dependent_links"
}
