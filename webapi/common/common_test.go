package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorToStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, fiber.StatusOK},
		{fmt.Errorf("wrapped: %w", domain.ErrAccountNotFound), fiber.StatusNotFound},
		{domain.ErrAuthorization, fiber.StatusForbidden},
		{domain.ErrUnauthorized, fiber.StatusUnauthorized},
		{domain.ErrInsufficientFunds, fiber.StatusUnprocessableEntity},
		{domain.ErrAccountNotActive, fiber.StatusConflict},
		{domain.ErrDuplicateReference, fiber.StatusConflict},
		{domain.ErrReferenceConflict, fiber.StatusConflict},
		{domain.ErrPartialDistribution, fiber.StatusConflict},
		{domain.ErrSameCategory, fiber.StatusBadRequest},
		{domain.ErrInvalidAmount, fiber.StatusBadRequest},
		{lock.ErrNotAcquired, fiber.StatusServiceUnavailable},
		{fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorToStatusCode(tc.err), "%v", tc.err)
	}
}

func TestProblemDetailsJSON_HidesInternalErrors(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return ProblemDetailsJSON(c, "Failed", errors.New("pq: connection refused"))
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return ProblemDetailsJSON(c, "Failed", domain.ErrAccountNotFound)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, problemJSON, resp.Header.Get(fiber.HeaderContentType))
	var p ProblemDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Empty(t, p.Detail)
	assert.Equal(t, "/boom", p.Instance)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, problemJSON, resp.Header.Get(fiber.HeaderContentType))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Contains(t, p.Detail, "not found")
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

func TestBindAndValidate(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		in, err := BindAndValidate[amountRequest](c)
		if in == nil {
			return err
		}
		return c.SendString(in.Amount)
	})
	post := func(body string) (int, string) {
		req := httptest.NewRequest(fiber.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		var p ProblemDetails
		_ = json.NewDecoder(resp.Body).Decode(&p)
		return resp.StatusCode, fmt.Sprint(p.Errors)
	}

	status, _ := post(`{"amount":"12.50"}`)
	assert.Equal(t, fiber.StatusOK, status)

	status, details := post(`{"amount":"ten"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, details, "amount:numeric")

	status, _ = post(`{"amount":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
