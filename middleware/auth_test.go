package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newApp() *fiber.App {
	log, _ := test.NewNullLogger()
	app := fiber.New()
	app.Use(LoggerMiddleware(log))
	api := app.Group("/api", JWTMiddleware(secret), RequireOwnerOrAdmin())
	api.Get("/whoami", func(c *fiber.Ctx) error {
		claims, err := GetCurrentClaims(c)
		if err != nil {
			return err
		}
		return c.SendString(claims.Username)
	})
	return app
}

func TestAdminRoutesRequireOwnerOrAdmin(t *testing.T) {
	app := newApp()

	cases := []struct {
		name   string
		header func(t *testing.T) string
		status int
	}{
		{"missing header", func(*testing.T) string { return "" }, fiber.StatusUnauthorized},
		{"not bearer", func(*testing.T) string { return "Token abc" }, fiber.StatusUnauthorized},
		{"garbage token", func(*testing.T) string { return "Bearer abc" }, fiber.StatusUnauthorized},
		{"wrong secret", func(t *testing.T) string {
			tok, err := GenerateToken("other", 1, "eve", "admin", time.Hour)
			require.NoError(t, err)
			return "Bearer " + tok
		}, fiber.StatusUnauthorized},
		{"expired", func(t *testing.T) string {
			tok, err := GenerateToken(secret, 1, "old", "admin", -time.Minute)
			require.NoError(t, err)
			return "Bearer " + tok
		}, fiber.StatusUnauthorized},
		{"teacher role", func(t *testing.T) string {
			tok, err := GenerateToken(secret, 2, "tina", "teacher", time.Hour)
			require.NoError(t, err)
			return "Bearer " + tok
		}, fiber.StatusForbidden},
		{"owner", func(t *testing.T) string {
			tok, err := GenerateToken(secret, 3, "olivia", "owner", time.Hour)
			require.NoError(t, err)
			return "Bearer " + tok
		}, fiber.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/whoami", nil)
			if h := tc.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	app := newApp()
	req := httptest.NewRequest("GET", "/api/whoami", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}
