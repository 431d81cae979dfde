package common

import (
	"time"

	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/deposit"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/service/report"
	"github.com/google/uuid"
)

// AccountDTO is the wire form of an account. Amounts are decimal strings.
type AccountDTO struct {
	ID              string `json:"id"`
	DependentID     string `json:"dependentId"`
	IsMainAccount   bool   `json:"isMainAccount"`
	Category        string `json:"category,omitempty"`
	ParentAccountID string `json:"parentAccountId,omitempty"`
	Currency        string `json:"currency"`
	Balance         string `json:"balance"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

// EntryDTO is the wire form of a ledger entry.
type EntryDTO struct {
	ID           string          `json:"id"`
	Sequence     int64           `json:"sequence"`
	AccountID    string          `json:"accountId"`
	DependentID  string          `json:"dependentId"`
	Amount       string          `json:"amount"`
	Type         string          `json:"type"`
	Reference    string          `json:"reference"`
	Category     string          `json:"category"`
	Description  string          `json:"description,omitempty"`
	BalanceAfter string          `json:"balanceAfter"`
	Metadata     ledger.Metadata `json:"metadata"`
	CreatedAt    string          `json:"createdAt"`
}

// DistributionDTO summarizes the distribution that followed a deposit.
type DistributionDTO struct {
	Distributed string `json:"distributed"`
	Remainder   string `json:"remainder"`
	EntryCount  int    `json:"entryCount"`
	Error       string `json:"error,omitempty"`
}

// ConfirmResponse is the deposit confirmation result.
type ConfirmResponse struct {
	Status        string           `json:"status"`
	Reference     string           `json:"reference"`
	LedgerEntryID *string          `json:"ledgerEntryId"`
	NewBalance    *string          `json:"newBalance"`
	Reason        string           `json:"reason,omitempty"`
	Distribution  *DistributionDTO `json:"distribution,omitempty"`
}

// HistoryResponse is one page of an account's history.
type HistoryResponse struct {
	Entries  []EntryDTO `json:"entries"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Total    int64      `json:"total"`
	Warning  string     `json:"warning,omitempty"`
}

func ToAccountDTO(a *account.Account) AccountDTO {
	dto := AccountDTO{
		ID:            a.ID.String(),
		DependentID:   a.DependentID.String(),
		IsMainAccount: a.IsMainAccount,
		Category:      string(a.Category),
		Currency:      string(a.Currency),
		Balance:       a.Balance.String(),
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.ParentAccountID != nil {
		dto.ParentAccountID = a.ParentAccountID.String()
	}
	return dto
}

func ToAccountDTOs(accounts []*account.Account) []AccountDTO {
	out := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, ToAccountDTO(a))
	}
	return out
}

func ToEntryDTO(e *ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:           e.ID.String(),
		Sequence:     e.Sequence,
		AccountID:    e.AccountID.String(),
		DependentID:  e.DependentID.String(),
		Amount:       e.Amount.String(),
		Type:         string(e.Type),
		Reference:    e.Reference,
		Category:     e.Category,
		Description:  e.Description,
		BalanceAfter: e.BalanceAfter.String(),
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ToEntryDTOs(entries []*ledger.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			out = append(out, ToEntryDTO(e))
		}
	}
	return out
}

func ToConfirmResponse(r deposit.Result) ConfirmResponse {
	resp := ConfirmResponse{
		Status:    string(r.Status),
		Reference: r.Reference,
		Reason:    r.Reason,
	}
	if r.LedgerEntryID != nil {
		id := r.LedgerEntryID.String()
		resp.LedgerEntryID = &id
	}
	if r.NewBalance != nil {
		b := r.NewBalance.String()
		resp.NewBalance = &b
	}
	if d := r.Distribution; d != nil {
		resp.Distribution = &DistributionDTO{
			Distributed: d.Distributed.String(),
			Remainder:   d.Remainder.String(),
			EntryCount:  d.EntryCount,
			Error:       d.Error,
		}
	}
	return resp
}

func ToHistoryResponse(p *report.HistoryPage) HistoryResponse {
	return HistoryResponse{
		Entries:  ToEntryDTOs(p.Entries),
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    p.Total,
		Warning:  p.Warning,
	}
}

// UUIDString renders an optional id.
func UUIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
