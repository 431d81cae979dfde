package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents an account record in the database.
type Account struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	DependentID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	CaregiverID     *uuid.UUID      `gorm:"type:uuid"`
	IsMainAccount   bool            `gorm:"not null"`
	Category        *string         `gorm:"type:varchar(32)"`
	ParentAccountID *uuid.UUID      `gorm:"type:uuid;index"`
	Currency        string          `gorm:"type:varchar(3);not null"`
	Balance         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Status          string          `gorm:"type:varchar(16);not null"`
	Version         int64           `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName specifies the table name for the Account model.
func (Account) TableName() string {
	return "accounts"
}
