package ledger

import (
	"time"

	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry represents a ledger_entries row. Rows are inserted once and never
// updated; Seq preserves the serialized order of inserts.
type Entry struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Seq          int64           `gorm:"autoIncrement;not null;uniqueIndex"`
	AccountID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_ledger_entries_reference_account,priority:2"`
	DependentID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Type         string          `gorm:"type:varchar(8);not null"`
	Reference    string          `gorm:"type:varchar(255);not null;uniqueIndex:ux_ledger_entries_reference_account,priority:1"`
	Category     string          `gorm:"type:varchar(32)"`
	Description  string          `gorm:"type:text"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Metadata     ledger.Metadata `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time       `gorm:"not null;index"`
}

// TableName specifies the table name for the Entry model.
func (Entry) TableName() string {
	return "ledger_entries"
}
