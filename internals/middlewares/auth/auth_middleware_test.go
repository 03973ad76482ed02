package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func testApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(secret), OnlyRoles("finance only", "admin", "bursar"), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user":   c.Locals(LocalUserID),
			"role":   c.Locals(LocalRole),
			"school": c.Locals(LocalSchoolID),
		})
	})
	return app
}

func call(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	app := testApp()
	uid := uuid.New().String()
	valid := jwt.MapClaims{
		"id":        uid,
		"role":      "Bursar",
		"school_id": uuid.New().String(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	}

	assert.Equal(t, fiber.StatusOK, call(t, app, sign(t, valid, secret)))
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, sign(t, valid, "other-secret")))

	expired := jwt.MapClaims{"id": uid, "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, sign(t, expired, secret)))

	noID := jwt.MapClaims{"role": "admin", "exp": time.Now().Add(time.Hour).Unix()}
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, sign(t, noID, secret)))

	parent := jwt.MapClaims{"id": uid, "role": "parent", "exp": time.Now().Add(time.Hour).Unix()}
	assert.Equal(t, fiber.StatusForbidden, call(t, app, sign(t, parent, secret)))
}

func TestExtractBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		tok, err := extractBearerToken(c)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return c.SendString(tok)
	})

	for header, want := range map[string]int{
		`Bearer abc`:     fiber.StatusOK,
		`bearer   "abc"`: fiber.StatusOK,
		`Token abc`:      fiber.StatusUnauthorized,
		`Bearer`:         fiber.StatusUnauthorized,
	} {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		req.Header.Set(fiber.HeaderAuthorization, header)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, header)
	}
}

func TestHasRole(t *testing.T) {
	app := fiber.New()
	app.Get("/check", AuthMiddleware(secret), func(c *fiber.Ctx) error {
		if HasRole(c, "admin", "bursar") {
			return c.SendStatus(fiber.StatusOK)
		}
		return c.SendStatus(fiber.StatusForbidden)
	})

	check := func(role string) int {
		tok := sign(t, jwt.MapClaims{
			"id":   uuid.New().String(),
			"role": role,
			"exp":  time.Now().Add(time.Hour).Unix(),
		}, secret)
		req := httptest.NewRequest(fiber.MethodGet, "/check", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, check("BURSAR"))
	assert.Equal(t, fiber.StatusForbidden, check("parent"))
	assert.Equal(t, fiber.StatusForbidden, check(""))
}
