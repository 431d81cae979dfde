package transfer

import (
	"errors"
	"fmt"

	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/service/payout"
	transfersvc "github.com/amirasaad/carefund/pkg/service/transfer"
	"github.com/amirasaad/carefund/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the client key that makes a transfer replayable.
const IdempotencyHeader = "Idempotency-Key"

// Routes registers transfer, reversal and payout endpoints.
//
// Routes:
//   - POST /transfers                      : Move funds between sub-accounts.
//   - POST /transfers/:reference/reverse   : Reverse a completed transfer.
//   - POST /payouts                        : Pay a merchant from a sub-account.
func Routes(r fiber.Router, a *app.App) {
	protected := common.Protected(a.Config)
	r.Post("/transfers", protected, Transfer(a))
	r.Post("/transfers/:reference/reverse", protected, Reverse(a))
	r.Post("/payouts", protected, Payout(a))
}

// Transfer returns a handler that moves funds between two sub-accounts.
// @Summary Transfer between categories
// @Tags transfers
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client idempotency key"
// @Param request body TransferRequest true "Transfer"
// @Success 201 {object} common.Response "Transfer completed"
// @Success 200 {object} common.Response "Transfer replayed"
// @Failure 400 {object} common.ProblemDetails "Same category, main account or different dependent"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Failure 422 {object} common.ProblemDetails "Insufficient funds"
// @Router /transfers [post]
// @Security Bearer
func Transfer(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		input, err := common.BindAndValidate[TransferRequest](c)
		if input == nil {
			return err
		}
		from, to, amount, err := parseTransfer(input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid transfer", err)
		}
		ctx := c.UserContext()
		source, err := a.AccountService.Get(ctx, from)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Transfer failed", err)
		}
		if err := a.Authorizer.Require(ctx, requester, source.DependentID); err != nil {
			return common.ProblemDetailsJSON(c, "Transfer failed", err)
		}
		result, err := a.TransferService.Transfer(ctx, transfersvc.TransferCommand{
			FromAccountID:  from,
			ToAccountID:    to,
			Amount:         amount,
			Description:    input.Description,
			IdempotencyKey: c.Get(IdempotencyHeader),
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Transfer failed", err)
		}
		status := fiber.StatusCreated
		if result.Replayed {
			status = fiber.StatusOK
		}
		return common.SuccessResponseJSON(c, status, "Transfer completed", toTransferResponse(result))
	}
}

// Reverse returns a handler that reverses a transfer by its reference.
// @Summary Reverse a transfer
// @Tags transfers
// @Accept json
// @Produce json
// @Param reference path string true "Transfer reference"
// @Param request body ReverseRequest true "Reason"
// @Success 201 {object} common.Response "Reversal completed"
// @Failure 404 {object} common.ProblemDetails "Unknown transfer"
// @Failure 422 {object} common.ProblemDetails "Destination no longer holds the funds"
// @Router /transfers/{reference}/reverse [post]
// @Security Bearer
func Reverse(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		reference := c.Params("reference")
		input, err := common.BindAndValidate[ReverseRequest](c)
		if input == nil {
			return err
		}
		ctx := c.UserContext()
		entries, err := a.LedgerService.FindByReference(ctx, reference)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Reversal failed", err)
		}
		if len(entries) == 0 {
			return common.ProblemDetailsJSON(c, "Reversal failed",
				fmt.Errorf("transfer %s: %w", reference, domain.ErrNotFound))
		}
		if err := a.Authorizer.Require(ctx, requester, entries[0].DependentID); err != nil {
			return common.ProblemDetailsJSON(c, "Reversal failed", err)
		}
		result, err := a.TransferService.Reverse(ctx, reference, input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Reversal failed", err)
		}
		status := fiber.StatusCreated
		if result.Replayed {
			status = fiber.StatusOK
		}
		return common.SuccessResponseJSON(c, status, "Reversal completed", toTransferResponse(result))
	}
}

// Payout returns a handler that pays a merchant from a sub-account.
// @Summary Pay out from a category
// @Tags payouts
// @Accept json
// @Produce json
// @Param request body PayoutRequest true "Payout"
// @Success 201 {object} common.Response "Payout completed"
// @Failure 400 {object} common.ProblemDetails "Main account or invalid amount"
// @Failure 422 {object} common.ProblemDetails "Insufficient funds"
// @Router /payouts [post]
// @Security Bearer
func Payout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		input, err := common.BindAndValidate[PayoutRequest](c)
		if input == nil {
			return err
		}
		accountID, err := uuid.Parse(input.AccountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payout", errors.Join(domain.ErrValidation, err))
		}
		amount, err := decimal.NewFromString(input.Amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payout", errors.Join(domain.ErrInvalidAmount, err))
		}
		ctx := c.UserContext()
		acct, err := a.AccountService.Get(ctx, accountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Payout failed", err)
		}
		if err := a.Authorizer.Require(ctx, requester, acct.DependentID); err != nil {
			return common.ProblemDetailsJSON(c, "Payout failed", err)
		}
		result, err := a.PayoutService.Payout(ctx, payout.PayoutCommand{
			AccountID:   accountID,
			Amount:      amount,
			Merchant:    input.Merchant,
			Reference:   input.Reference,
			Description: input.Description,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Payout failed", err)
		}
		status := fiber.StatusCreated
		if result.Replayed {
			status = fiber.StatusOK
		}
		return common.SuccessResponseJSON(c, status, "Payout completed", PayoutResponse{
			Reference: result.Reference,
			Replayed:  result.Replayed,
			Entry:     entryDTO(result.Entry),
		})
	}
}

func parseTransfer(in *TransferRequest) (from, to uuid.UUID, amount decimal.Decimal, err error) {
	if from, err = uuid.Parse(in.FromAccountID); err != nil {
		return from, to, amount, errors.Join(domain.ErrValidation, err)
	}
	if to, err = uuid.Parse(in.ToAccountID); err != nil {
		return from, to, amount, errors.Join(domain.ErrValidation, err)
	}
	if amount, err = decimal.NewFromString(in.Amount); err != nil {
		return from, to, amount, errors.Join(domain.ErrInvalidAmount, err)
	}
	return from, to, amount, nil
}

func toTransferResponse(r *transfersvc.Result) TransferResponse {
	return TransferResponse{
		Reference: r.Reference,
		Replayed:  r.Replayed,
		Outgoing:  entryDTO(r.Outgoing),
		Incoming:  entryDTO(r.Incoming),
	}
}

func entryDTO(e *ledger.Entry) *common.EntryDTO {
	if e == nil {
		return nil
	}
	dto := common.ToEntryDTO(e)
	return &dto
}
