package middlewares

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helper "github.com/boazomare1/school-managementKE-sub001/internals/helpers"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/logger"
)

func TestRecoveryLogsPanic(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New(fiber.Config{ErrorHandler: helper.FromError})
	SetupMiddlewares(app, zerolog.New(&buf), nil, time.Second)
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("ledger exploded")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/boom", nil)
	req.Header.Set(logger.HeaderRequestID, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"error_code":"INTERNAL_ERROR"`)
	assert.NotContains(t, string(body), "ledger exploded")

	out := buf.String()
	assert.Contains(t, out, `"message":"handler panicked"`)
	assert.Contains(t, out, `"panic":"ledger exploded"`)
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, `"path":"/boom"`)
	assert.Contains(t, out, `"stack":`)
}

func TestWebhookRateLimiterEnvelope(t *testing.T) {
	app := fiber.New()
	app.Post("/webhooks/:provider", WebhookRateLimiter(1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/webhooks/mpesa", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/webhooks/mpesa", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"error_code":"RATE_LIMITED"`)

	// another provider has its own bucket
	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/webhooks/stripe", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
