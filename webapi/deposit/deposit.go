package deposit

import (
	"errors"

	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/domain"
	domaindeposit "github.com/amirasaad/carefund/pkg/domain/deposit"
	depositsvc "github.com/amirasaad/carefund/pkg/service/deposit"
	"github.com/amirasaad/carefund/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routes registers the deposit confirmation endpoints.
//
// Routes:
//   - POST /deposits/confirm                          : Apply a payment confirmation.
//   - GET  /deposits/:reference                       : Read a stored confirmation.
//   - GET  /deposits/:reference/rejections            : List unauthorized attempts.
//   - POST /deposits/:reference/distribution/retry    : Re-run a failed distribution.
func Routes(r fiber.Router, a *app.App) {
	protected := common.Protected(a.Config)
	r.Post("/deposits/confirm", protected, Confirm(a))
	r.Get("/deposits/:reference", protected, GetConfirmation(a))
	r.Get("/deposits/:reference/rejections", protected, ListRejections(a))
	r.Post("/deposits/:reference/distribution/retry", protected, RetryDistribution(a))
}

// Confirm returns a handler that applies a deposit confirmation exactly once.
// A first application answers 201, a replay 200.
// @Summary Confirm a deposit
// @Tags deposits
// @Accept json
// @Produce json
// @Param request body ConfirmRequest true "Confirmation"
// @Success 201 {object} common.Response "Applied"
// @Success 200 {object} common.Response "AlreadyApplied"
// @Failure 400 {object} common.ProblemDetails "Invalid amount or reference"
// @Failure 403 {object} common.ProblemDetails "Funder not authorized; the attempt is recorded as Rejected"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 409 {object} common.ProblemDetails "Reference applied to a different deposit or the account is not active"
// @Router /deposits/confirm [post]
// @Security Bearer
func Confirm(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		input, err := common.BindAndValidate[ConfirmRequest](c)
		if input == nil {
			return err
		}
		cmd, err := toCommand(input, requester)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid confirmation", err)
		}
		result, err := a.DepositGateway.Confirm(c.UserContext(), cmd)
		if err != nil {
			if result.Status == domaindeposit.StatusRejected {
				return common.ProblemDetailsJSON(c, "Deposit rejected", err, common.ToConfirmResponse(result))
			}
			return common.ProblemDetailsJSON(c, "Failed to confirm deposit", err)
		}
		status := fiber.StatusCreated
		if result.Status == domaindeposit.StatusAlreadyApplied {
			status = fiber.StatusOK
		}
		return common.SuccessResponseJSON(c, status, string(result.Status), common.ToConfirmResponse(result))
	}
}

// GetConfirmation returns a handler that reads a confirmation by payment
// reference.
// @Summary Read a deposit confirmation
// @Tags deposits
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} common.Response "Confirmation"
// @Failure 404 {object} common.ProblemDetails "Unknown reference"
// @Router /deposits/{reference} [get]
// @Security Bearer
func GetConfirmation(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		conf, err := authorizedConfirmation(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read confirmation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Confirmation fetched", toConfirmationDTO(conf))
	}
}

// ListRejections returns a handler that lists the unauthorized attempts on a
// payment reference. Only attempts against dependents the requester may act
// for are listed.
// @Summary List rejected attempts for a payment reference
// @Tags deposits
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} common.Response "Rejected attempts"
// @Router /deposits/{reference}/rejections [get]
// @Security Bearer
func ListRejections(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		ctx := c.UserContext()
		rejections, err := a.DepositGateway.Rejections(ctx, c.Params("reference"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list rejections", err)
		}
		out := make([]ConfirmationDTO, 0, len(rejections))
		for _, conf := range rejections {
			ok, err := a.Authorizer.IsAuthorized(ctx, requester, conf.DependentID)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Failed to list rejections", err)
			}
			if ok {
				out = append(out, toConfirmationDTO(conf))
			}
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Rejections fetched", out)
	}
}

// RetryDistribution returns a handler that re-runs the distribution of an
// applied deposit. A completed distribution is reported, not repeated.
// @Summary Retry a deposit's distribution
// @Tags deposits
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} common.Response "Distribution result"
// @Failure 409 {object} common.ProblemDetails "Distribution failed again"
// @Router /deposits/{reference}/distribution/retry [post]
// @Security Bearer
func RetryDistribution(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		conf, err := authorizedConfirmation(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to retry distribution", err)
		}
		result, err := a.DepositGateway.RetryDistribution(c.UserContext(), conf.PaymentReference)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to retry distribution", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Distribution completed", RetryResponse{
			Reference:          result.Reference,
			AlreadyDistributed: result.AlreadyDistributed,
			Distributed:        result.Plan.Distributed.String(),
			Remainder:          result.Plan.Remainder.String(),
			Entries:            common.ToEntryDTOs(result.Entries()),
		})
	}
}

func authorizedConfirmation(c *fiber.Ctx, a *app.App) (*domaindeposit.Confirmation, error) {
	requester, err := common.RequesterID(c, a.AuthService)
	if err != nil {
		return nil, err
	}
	reference := c.Params("reference")
	if reference == "" {
		return nil, domain.ErrMissingReference
	}
	ctx := c.UserContext()
	conf, err := a.DepositGateway.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := a.Authorizer.Require(ctx, requester, conf.DependentID); err != nil {
		return nil, err
	}
	return conf, nil
}

func toCommand(in *ConfirmRequest, requester uuid.UUID) (depositsvc.ConfirmCommand, error) {
	accountID, err := uuid.Parse(in.DependentAccountID)
	if err != nil {
		return depositsvc.ConfirmCommand{}, errors.Join(domain.ErrValidation, err)
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return depositsvc.ConfirmCommand{}, errors.Join(domain.ErrInvalidAmount, err)
	}
	funderID := requester
	if in.FunderID != "" {
		if funderID, err = uuid.Parse(in.FunderID); err != nil {
			return depositsvc.ConfirmCommand{}, errors.Join(domain.ErrValidation, err)
		}
	}
	return depositsvc.ConfirmCommand{
		PaymentReference:   in.PaymentReference,
		DependentAccountID: accountID,
		Amount:             amount,
		Currency:           in.Currency,
		FunderID:           funderID,
	}, nil
}

func toConfirmationDTO(conf *domaindeposit.Confirmation) ConfirmationDTO {
	dto := ConfirmationDTO{
		PaymentReference:  conf.PaymentReference,
		MainAccountID:     conf.MainAccountID.String(),
		DependentID:       conf.DependentID.String(),
		FunderID:          conf.FunderID.String(),
		Amount:            conf.Amount.String(),
		Currency:          string(conf.Currency),
		State:             string(conf.State),
		Reason:            conf.Reason,
		LedgerEntryID:     common.UUIDString(conf.LedgerEntryID),
		DistributionError: conf.DistributionError,
	}
	if conf.NewBalance != nil {
		dto.NewBalance = conf.NewBalance.String()
	}
	return dto
}
