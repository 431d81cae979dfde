package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amirasaad/carefund/pkg/config"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(JwtProtected(&config.Jwt{Secret: secret}))
	app.Get("/", func(c *fiber.Ctx) error {
		token := c.Locals("user").(*jwt.Token)
		sub, _ := token.Claims.GetSubject()
		return c.SendString(sub)
	})
	return app
}

func TestJwtProtected(t *testing.T) {
	app := protectedApp("s3cret")
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "caregiver-1"}).
		SignedString([]byte("s3cret"))
	require.NoError(t, err)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "caregiver-1"}).
		SignedString([]byte("other"))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + signed, want: fiber.StatusOK},
		{name: "missing", header: "", want: fiber.StatusBadRequest},
		{name: "wrong key", header: "Bearer " + forged, want: fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestJwtError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: jwtware.ErrJWTMissingOrMalformed, want: fiber.StatusBadRequest},
		{err: errors.New("token is expired"), want: fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		app := fiber.New()
		app.Use(func(c *fiber.Ctx) error { return jwtError(c, tc.err) })
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode)
		assert.Equal(t, problemJSON, resp.Header.Get(fiber.HeaderContentType))
	}
}
