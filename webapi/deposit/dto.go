package deposit

import "github.com/amirasaad/carefund/webapi/common"

//revive:disable

// ConfirmRequest is a completed-payment notification. FunderID defaults to
// the requester.
type ConfirmRequest struct {
	PaymentReference   string `json:"paymentReference" validate:"required,max=255"`
	DependentAccountID string `json:"dependentAccountId" validate:"required,uuid"`
	Amount             string `json:"amount" validate:"required,numeric"`
	Currency           string `json:"currency" validate:"omitempty,len=3,uppercase,alpha"`
	FunderID           string `json:"funderId" validate:"omitempty,uuid"`
}

// ConfirmationDTO is a stored confirmation.
type ConfirmationDTO struct {
	PaymentReference  string `json:"paymentReference"`
	MainAccountID     string `json:"mainAccountId"`
	DependentID       string `json:"dependentId"`
	FunderID          string `json:"funderId"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	State             string `json:"state"`
	Reason            string `json:"reason,omitempty"`
	LedgerEntryID     string `json:"ledgerEntryId,omitempty"`
	NewBalance        string `json:"newBalance,omitempty"`
	DistributionError string `json:"distributionError,omitempty"`
}

// RetryResponse reports a re-run distribution.
type RetryResponse struct {
	Reference          string            `json:"reference"`
	AlreadyDistributed bool              `json:"alreadyDistributed"`
	Distributed        string            `json:"distributed"`
	Remainder          string            `json:"remainder"`
	Entries            []common.EntryDTO `json:"entries"`
}
