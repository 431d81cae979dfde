package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags which typed context a Metadata value carries.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindAllocation Kind = "allocation"
	KindTransfer   Kind = "transfer"
	KindPayout     Kind = "payout"
	KindReversal   Kind = "reversal"
)

// Metadata is informational context on an entry. Exactly one typed field
// matching Kind is set; Extra holds free-form audit keys. Nothing here is
// read by balance math.
type Metadata struct {
	Kind       Kind               `json:"kind"`
	Deposit    *DepositContext    `json:"deposit,omitempty"`
	Allocation *AllocationContext `json:"allocation,omitempty"`
	Transfer   *TransferContext   `json:"transfer,omitempty"`
	Payout     *PayoutContext     `json:"payout,omitempty"`
	Reversal   *ReversalContext   `json:"reversal,omitempty"`
	Extra      map[string]string  `json:"extra,omitempty"`
}

type DepositContext struct {
	PaymentReference string    `json:"payment_reference"`
	FunderID         uuid.UUID `json:"funder_id"`
	Currency         string    `json:"currency"`
}

// AllocationContext describes one leg of a distribution. Distributed and
// Remainder are only set on the main-account debit.
type AllocationContext struct {
	SourceReference string          `json:"source_reference"`
	Percentage      decimal.Decimal `json:"percentage"`
	Distributed     decimal.Decimal `json:"distributed"`
	Remainder       decimal.Decimal `json:"remainder"`
}

type TransferContext struct {
	CounterpartAccountID uuid.UUID `json:"counterpart_account_id"`
	CounterpartCategory  string    `json:"counterpart_category"`
}

type PayoutContext struct {
	Merchant string `json:"merchant"`
}

type ReversalContext struct {
	OriginalReference string `json:"original_reference"`
	Reason            string `json:"reason"`
}

func DepositMeta(ctx DepositContext) Metadata {
	return Metadata{Kind: KindDeposit, Deposit: &ctx}
}

func AllocationMeta(ctx AllocationContext) Metadata {
	return Metadata{Kind: KindAllocation, Allocation: &ctx}
}

func TransferMeta(ctx TransferContext) Metadata {
	return Metadata{Kind: KindTransfer, Transfer: &ctx}
}

func PayoutMeta(ctx PayoutContext) Metadata {
	return Metadata{Kind: KindPayout, Payout: &ctx}
}

func ReversalMeta(ctx ReversalContext) Metadata {
	return Metadata{Kind: KindReversal, Reversal: &ctx}
}

// With returns a copy with an extra audit key set.
func (m Metadata) With(key, value string) Metadata {
	extra := make(map[string]string, len(m.Extra)+1)
	for k, v := range m.Extra {
		extra[k] = v
	}
	extra[key] = value
	m.Extra = extra
	return m
}
