package deposit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Confirmation represents a deposit_confirmations row; PaymentReference is
// unique and acts as the exactly-once claim for an external payment.
type Confirmation struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey"`
	PaymentReference  string           `gorm:"type:varchar(255);not null;uniqueIndex"`
	MainAccountID     uuid.UUID        `gorm:"type:uuid;not null"`
	DependentID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	FunderID          uuid.UUID        `gorm:"type:uuid;not null"`
	Amount            decimal.Decimal  `gorm:"type:numeric(20,8);not null"`
	Currency          string           `gorm:"type:varchar(3);not null"`
	State             string           `gorm:"type:varchar(16);not null"`
	Reason            string           `gorm:"type:text"`
	LedgerEntryID     *uuid.UUID       `gorm:"type:uuid"`
	NewBalance        *decimal.Decimal `gorm:"type:numeric(20,8)"`
	DistributionError string           `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName specifies the table name for the Confirmation model.
func (Confirmation) TableName() string {
	return "deposit_confirmations"
}

// Rejection represents a deposit_rejections row, one per payment reference
// and funder that attempted it without authorization.
type Rejection struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PaymentReference string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_deposit_rejections_reference_funder"`
	FunderID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_deposit_rejections_reference_funder"`
	MainAccountID    uuid.UUID       `gorm:"type:uuid;not null"`
	DependentID      uuid.UUID       `gorm:"type:uuid;not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency         string          `gorm:"type:varchar(3);not null"`
	Reason           string          `gorm:"type:text"`
	CreatedAt        time.Time
}

// TableName specifies the table name for the Rejection model.
func (Rejection) TableName() string {
	return "deposit_rejections"
}
