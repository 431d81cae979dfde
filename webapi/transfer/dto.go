package transfer

import "github.com/amirasaad/carefund/webapi/common"

//revive:disable

// TransferRequest moves funds between two sub-accounts of one dependent.
type TransferRequest struct {
	FromAccountID string `json:"fromAccountId" validate:"required,uuid"`
	ToAccountID   string `json:"toAccountId" validate:"required,uuid,nefield=FromAccountID"`
	Amount        string `json:"amount" validate:"required,numeric"`
	Description   string `json:"description" validate:"max=255"`
}

// ReverseRequest undoes a completed transfer.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// PayoutRequest pays a merchant from a sub-account. Reference makes the
// payout idempotent.
type PayoutRequest struct {
	AccountID   string `json:"accountId" validate:"required,uuid"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Merchant    string `json:"merchant" validate:"required,max=255"`
	Reference   string `json:"reference" validate:"max=255"`
	Description string `json:"description" validate:"max=255"`
}

type TransferResponse struct {
	Reference string           `json:"reference"`
	Replayed  bool             `json:"replayed"`
	Outgoing  *common.EntryDTO `json:"outgoing"`
	Incoming  *common.EntryDTO `json:"incoming"`
}

type PayoutResponse struct {
	Reference string           `json:"reference"`
	Replayed  bool             `json:"replayed"`
	Entry     *common.EntryDTO `json:"entry"`
}
