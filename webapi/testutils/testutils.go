// Package testutils builds an in-memory HTTP stack for handler tests.
package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	infracache "github.com/amirasaad/carefund/infra/cache"
	infraeventbus "github.com/amirasaad/carefund/infra/eventbus"
	"github.com/amirasaad/carefund/infra/repository/memory"
	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/lock"
	"github.com/amirasaad/carefund/pkg/metrics"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	"github.com/amirasaad/carefund/webapi"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	JwtSecret     = "test-secret"
	StripeSecret  = "whsec_test_secret"
	DefaultSplits = "healthcare:50,groceries:30"
)

// Env is a wired app over the in-memory backend.
type Env struct {
	App   *app.App
	Fiber *fiber.App
}

// Config is the configuration tests start from: three categories, a 50/30
// default split and no rate limit.
func Config() *config.App {
	return &config.App{
		Env:        "test",
		Name:       "carefund-test",
		Auth:       &config.Auth{Jwt: &config.Jwt{Secret: JwtSecret, Issuer: "carefund", Expiry: time.Hour}},
		Ledger:     &config.Ledger{Currency: "USD", Categories: []string{"healthcare", "groceries", "other"}},
		Allocation: &config.Allocation{Default: DefaultSplits, CacheTTL: time.Minute},
		Stripe:     &config.Stripe{SigningSecret: StripeSecret},
		Metrics:    &config.Metrics{Enabled: true, Endpoint: "/metrics"},
		RateLimit:  &config.RateLimit{},
	}
}

// NewEnv builds the HTTP stack. mutate adjusts the configuration first.
func NewEnv(tb testing.TB, mutate ...func(*config.App)) *Env {
	tb.Helper()
	cfg := Config()
	for _, m := range mutate {
		m(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mc := infracache.NewMemoryCache()
	deps := &config.Deps{
		Uow:       memory.NewUoW(),
		EventBus:  infraeventbus.NewWithMemory(logger),
		RuleCache: mc,
		Locker:    lock.Noop{},
		Metrics:   metrics.New(),
		Logger:    logger,
		Config:    cfg,
		Closers:   []func() error{func() error { mc.Close(); return nil }},
	}
	tb.Cleanup(func() { _ = deps.Close() })

	a, err := app.New(deps)
	require.NoError(tb, err)
	return &Env{App: a, Fiber: webapi.SetupApp(a)}
}

// Token signs a bearer token for subject.
func (e *Env) Token(tb testing.TB, subject uuid.UUID) string {
	tb.Helper()
	token, err := e.App.AuthService.GenerateToken(context.Background(), subject)
	require.NoError(tb, err)
	return token
}

// Onboard creates a dependent whose caregiver is returned with the set.
func (e *Env) Onboard(tb testing.TB) (caregiver uuid.UUID, set *account.Set) {
	tb.Helper()
	caregiver = uuid.New()
	set, err := e.App.AccountService.CreateDependentAccountSet(context.Background(), accountsvc.OnboardCommand{
		DependentID: uuid.New(),
		CaregiverID: caregiver,
	})
	require.NoError(tb, err)
	return caregiver, set
}

// Request issues a request against the app. A non-nil body is sent as JSON;
// headers are name/value pairs.
func (e *Env) Request(tb testing.TB, method, path string, body any, token string, headers ...string) *http.Response {
	tb.Helper()
	return MakeRequestWithApp(tb, e.Fiber, method, path, body, token, headers...)
}

// MakeRequestWithApp issues a request against any fiber app.
func MakeRequestWithApp(
	tb testing.TB,
	app *fiber.App,
	method, path string,
	body any,
	token string,
	headers ...string,
) *http.Response {
	tb.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(tb, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Envelope is the decoded success envelope with Data kept raw.
type Envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Problem is a decoded problem document.
type Problem struct {
	Title  string          `json:"title"`
	Status int             `json:"status"`
	Detail string          `json:"detail"`
	Errors json.RawMessage `json:"errors"`
}

// DecodeData decodes the envelope's data into v and returns the envelope.
func DecodeData(tb testing.TB, resp *http.Response, v any) Envelope {
	tb.Helper()
	var env Envelope
	require.NoError(tb, json.NewDecoder(resp.Body).Decode(&env))
	if v != nil && len(env.Data) > 0 {
		require.NoError(tb, json.Unmarshal(env.Data, v))
	}
	return env
}

// DecodeProblem decodes a problem response.
func DecodeProblem(tb testing.TB, resp *http.Response) Problem {
	tb.Helper()
	var p Problem
	require.NoError(tb, json.NewDecoder(resp.Body).Decode(&p))
	return p
}
