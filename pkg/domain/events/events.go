package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntrySnapshot is the outbound view of a posted ledger entry.
type EntrySnapshot struct {
	EntryID      uuid.UUID       `json:"entry_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	Reference    string          `json:"reference"`
	Category     string          `json:"category"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// DepositApplied is emitted after a payment confirmation credited a main account.
type DepositApplied struct {
	PaymentReference string          `json:"payment_reference"`
	DependentID      uuid.UUID       `json:"dependent_id"`
	FunderID         uuid.UUID       `json:"funder_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Entry            EntrySnapshot   `json:"entry"`
	Timestamp        time.Time       `json:"timestamp"`
}

func (e DepositApplied) Type() string { return EventTypeDepositApplied.String() }

// DepositRejected is emitted when a confirmation failed authorization.
type DepositRejected struct {
	PaymentReference string    `json:"payment_reference"`
	DependentID      uuid.UUID `json:"dependent_id"`
	FunderID         uuid.UUID `json:"funder_id"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}

func (e DepositRejected) Type() string { return EventTypeDepositRejected.String() }

// DistributionApplied carries every entry of a completed distribution.
type DistributionApplied struct {
	SourceReference string          `json:"source_reference"`
	DependentID     uuid.UUID       `json:"dependent_id"`
	Distributed     decimal.Decimal `json:"distributed"`
	Remainder       decimal.Decimal `json:"remainder"`
	Entries         []EntrySnapshot `json:"entries"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (e DistributionApplied) Type() string { return EventTypeDistributionApplied.String() }

// DistributionFailed reports a distribution that was rolled back in full.
type DistributionFailed struct {
	SourceReference string    `json:"source_reference"`
	DependentID     uuid.UUID `json:"dependent_id"`
	AccountID       uuid.UUID `json:"account_id"`
	Category        string    `json:"category"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e DistributionFailed) Type() string { return EventTypeDistributionFailed.String() }

// TransferCompleted carries both legs of a sub-account transfer.
type TransferCompleted struct {
	Reference   string        `json:"reference"`
	DependentID uuid.UUID     `json:"dependent_id"`
	Outgoing    EntrySnapshot `json:"outgoing"`
	Incoming    EntrySnapshot `json:"incoming"`
	Timestamp   time.Time     `json:"timestamp"`
}

func (e TransferCompleted) Type() string { return EventTypeTransferCompleted.String() }

// ReversalCompleted carries the mirrored legs of a reversed transfer.
type ReversalCompleted struct {
	OriginalReference string        `json:"original_reference"`
	Reference         string        `json:"reference"`
	DependentID       uuid.UUID     `json:"dependent_id"`
	Outgoing          EntrySnapshot `json:"outgoing"`
	Incoming          EntrySnapshot `json:"incoming"`
	Timestamp         time.Time     `json:"timestamp"`
}

func (e ReversalCompleted) Type() string { return EventTypeReversalCompleted.String() }

// PayoutCompleted is emitted when a sub-account paid a merchant.
type PayoutCompleted struct {
	Reference   string        `json:"reference"`
	DependentID uuid.UUID     `json:"dependent_id"`
	Merchant    string        `json:"merchant"`
	Entry       EntrySnapshot `json:"entry"`
	Timestamp   time.Time     `json:"timestamp"`
}

func (e PayoutCompleted) Type() string { return EventTypePayoutCompleted.String() }
