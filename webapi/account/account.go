package account

import (
	"context"
	"fmt"

	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/domain"
	domainaccount "github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	"github.com/amirasaad/carefund/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routes registers account set, allocation and funder link endpoints.
//
// Routes:
//   - POST  /dependents/:id/accounts              : Onboard a dependent; the requester becomes caregiver.
//   - GET   /dependents/:id/accounts              : List the dependent's accounts.
//   - PATCH /accounts/:id/status                  : Activate, deactivate or freeze an account.
//   - GET   /dependents/:id/allocation            : Read the active allocation table.
//   - PUT   /dependents/:id/allocation            : Replace the dependent's allocation table.
//   - POST  /funders/:funderId/dependents/:id     : Link a funder to a dependent.
//   - DELETE /funders/:funderId/dependents/:id    : Remove a funder link.
func Routes(r fiber.Router, a *app.App) {
	protected := common.Protected(a.Config)
	r.Post("/dependents/:id/accounts", protected, Onboard(a))
	r.Get("/dependents/:id/accounts", protected, ListAccounts(a))
	r.Patch("/accounts/:id/status", protected, SetStatus(a))
	r.Get("/dependents/:id/allocation", protected, GetAllocation(a))
	r.Put("/dependents/:id/allocation", protected, PutAllocation(a))
	r.Post("/funders/:funderId/dependents/:id", protected, LinkFunder(a))
	r.Delete("/funders/:funderId/dependents/:id", protected, UnlinkFunder(a))
}

// Onboard returns a handler that creates a dependent's main account and its
// category sub-accounts.
// @Summary Onboard a dependent
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path string true "Dependent ID"
// @Param request body OnboardRequest true "Categories and currency"
// @Success 201 {object} common.Response "Account set created"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 409 {object} common.ProblemDetails "Dependent already onboarded"
// @Router /dependents/{id}/accounts [post]
// @Security Bearer
func Onboard(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		dependentID, err := common.UUIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid dependent ID", err)
		}
		input, err := common.BindAndValidate[OnboardRequest](c)
		if input == nil {
			return err
		}
		set, err := a.AccountService.CreateDependentAccountSet(c.UserContext(), accountsvc.OnboardCommand{
			DependentID: dependentID,
			CaregiverID: requester,
			Categories:  input.Categories,
			Currency:    input.Currency,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create account set", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Account set created", common.ToAccountDTOs(set.All()))
	}
}

// ListAccounts returns a handler listing the main account then sub-accounts.
// @Summary List a dependent's accounts
// @Tags accounts
// @Produce json
// @Param id path string true "Dependent ID"
// @Success 200 {object} common.Response "Accounts"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Failure 404 {object} common.ProblemDetails "Dependent not found"
// @Router /dependents/{id}/accounts [get]
// @Security Bearer
func ListAccounts(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dependentID, err := authorizeDependent(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list accounts", err)
		}
		accounts, err := a.AccountService.ListForDependent(c.UserContext(), dependentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list accounts", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Accounts fetched", common.ToAccountDTOs(accounts))
	}
}

// SetStatus returns a handler that changes an account's status. Only the
// dependent's caregiver may do this.
// @Summary Change account status
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body StatusRequest true "New status"
// @Success 200 {object} common.Response "Status updated"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Router /accounts/{id}/status [patch]
// @Security Bearer
func SetStatus(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		accountID, err := common.UUIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		input, err := common.BindAndValidate[StatusRequest](c)
		if input == nil {
			return err
		}
		ctx := c.UserContext()
		acct, err := a.AccountService.Get(ctx, accountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update status", err)
		}
		if err := requireCaregiver(ctx, a, requester, acct.DependentID); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update status", err)
		}
		if err := a.AccountService.SetStatus(ctx, accountID, domainaccount.Status(input.Status)); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update status", err)
		}
		acct, err = a.AccountService.Get(ctx, accountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update status", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Status updated", common.ToAccountDTO(acct))
	}
}

// GetAllocation returns a handler that reads the active allocation table.
// @Summary Read allocation rules
// @Tags allocation
// @Produce json
// @Param id path string true "Dependent ID"
// @Success 200 {object} common.Response "Allocation rules"
// @Router /dependents/{id}/allocation [get]
// @Security Bearer
func GetAllocation(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dependentID, err := authorizeDependent(c, a)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read allocation", err)
		}
		ctx := c.UserContext()
		_, custom, err := a.AllocationProvider.Lookup(ctx, dependentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read allocation", err)
		}
		rules, err := a.AllocationProvider.Rules(ctx, nil, dependentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read allocation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Allocation fetched", toAllocationResponse(dependentID, custom, rules))
	}
}

// PutAllocation returns a handler that replaces a dependent's allocation
// table. Only the caregiver may change it.
// @Summary Replace allocation rules
// @Tags allocation
// @Accept json
// @Produce json
// @Param id path string true "Dependent ID"
// @Param request body AllocationRequest true "Rules"
// @Success 200 {object} common.Response "Allocation updated"
// @Failure 400 {object} common.ProblemDetails "Percentages exceed 100 or a category is unknown"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Router /dependents/{id}/allocation [put]
// @Security Bearer
func PutAllocation(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		dependentID, err := common.UUIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid dependent ID", err)
		}
		input, err := common.BindAndValidate[AllocationRequest](c)
		if input == nil {
			return err
		}
		ctx := c.UserContext()
		if err := requireCaregiver(ctx, a, requester, dependentID); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update allocation", err)
		}
		rules, err := toRuleSet(input.Rules)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid allocation", err)
		}
		if err := a.AllocationProvider.SetRules(ctx, dependentID, rules); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update allocation", err)
		}
		active, err := a.AllocationProvider.Rules(ctx, nil, dependentID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to update allocation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Allocation updated", toAllocationResponse(dependentID, len(rules) > 0, active))
	}
}

// LinkFunder returns a handler that authorizes a funder for a dependent.
// @Summary Link a funder
// @Tags funders
// @Produce json
// @Param funderId path string true "Funder ID"
// @Param id path string true "Dependent ID"
// @Success 201 {object} common.Response "Funder linked"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Router /funders/{funderId}/dependents/{id} [post]
// @Security Bearer
func LinkFunder(a *app.App) fiber.Handler {
	return funderLink(a, fiber.StatusCreated, "Funder linked", a.Authorizer.Link)
}

// UnlinkFunder returns a handler that removes a funder link.
// @Summary Unlink a funder
// @Tags funders
// @Param funderId path string true "Funder ID"
// @Param id path string true "Dependent ID"
// @Success 200 {object} common.Response "Funder unlinked"
// @Router /funders/{funderId}/dependents/{id} [delete]
// @Security Bearer
func UnlinkFunder(a *app.App) fiber.Handler {
	return funderLink(a, fiber.StatusOK, "Funder unlinked", a.Authorizer.Unlink)
}

func funderLink(
	a *app.App,
	status int,
	message string,
	apply func(ctx context.Context, funderID, dependentID uuid.UUID) error,
) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requester, err := common.RequesterID(c, a.AuthService)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", err)
		}
		funderID, err := common.UUIDParam(c, "funderId")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid funder ID", err)
		}
		dependentID, err := common.UUIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid dependent ID", err)
		}
		ctx := c.UserContext()
		if err := requireCaregiver(ctx, a, requester, dependentID); err != nil {
			return common.ProblemDetailsJSON(c, message+" failed", err)
		}
		if err := apply(ctx, funderID, dependentID); err != nil {
			return common.ProblemDetailsJSON(c, message+" failed", err)
		}
		return common.SuccessResponseJSON(c, status, message, fiber.Map{
			"funderId":    funderID.String(),
			"dependentId": dependentID.String(),
		})
	}
}

// authorizeDependent parses the :id dependent and requires the requester to
// be its caregiver or a linked funder.
func authorizeDependent(c *fiber.Ctx, a *app.App) (uuid.UUID, error) {
	requester, err := common.RequesterID(c, a.AuthService)
	if err != nil {
		return uuid.Nil, err
	}
	dependentID, err := common.UUIDParam(c, "id")
	if err != nil {
		return uuid.Nil, err
	}
	if err := a.Authorizer.Require(c.UserContext(), requester, dependentID); err != nil {
		return uuid.Nil, err
	}
	return dependentID, nil
}

// requireCaregiver allows only the caregiver recorded on the main account.
func requireCaregiver(ctx context.Context, a *app.App, requester, dependentID uuid.UUID) error {
	main, err := a.AccountService.ResolveMain(ctx, dependentID)
	if err != nil {
		return err
	}
	if main.CaregiverID == nil || *main.CaregiverID != requester {
		return fmt.Errorf("requester %s is not the caregiver of %s: %w", requester, dependentID, domain.ErrAuthorization)
	}
	return nil
}

func toRuleSet(in []AllocationRule) (allocation.RuleSet, error) {
	rules := make(allocation.RuleSet, 0, len(in))
	for _, r := range in {
		pct, err := decimal.NewFromString(r.Percentage)
		if err != nil {
			return nil, fmt.Errorf("percentage %q: %w", r.Percentage, domain.ErrInvalidAllocation)
		}
		rules = append(rules, allocation.Rule{Category: domainaccount.Category(r.Category), Percentage: pct})
	}
	return rules, nil
}

func toAllocationResponse(dependentID uuid.UUID, custom bool, rules allocation.RuleSet) AllocationResponse {
	out := AllocationResponse{DependentID: dependentID.String(), Custom: custom, Rules: make([]AllocationRule, 0, len(rules))}
	for _, r := range rules {
		out.Rules = append(out.Rules, AllocationRule{Category: string(r.Category), Percentage: r.Percentage.String()})
	}
	return out
}
