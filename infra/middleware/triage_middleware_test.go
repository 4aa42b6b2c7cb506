package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/pkg/apperr"
	"triage_server/pkg/metrics"
)

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(Recover())
	app.Use(RequestID())
	app.Use(RequestLogger())
	return app
}

func decode(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestErrorHandler(t *testing.T) {
	app := newApp()
	app.Get("/app", func(c *fiber.Ctx) error { return apperr.NotFound("message") })
	app.Get("/wrapped", func(c *fiber.Ctx) error {
		return errors.Join(errors.New("context"), apperr.MissingField("status"))
	})
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTooManyRequests, "slow down") })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("secret detail") })

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/app", 404, apperr.CodeNotFound},
		{"/wrapped", 400, apperr.CodeMissingField},
		{"/fiber", 429, "RATE_LIMITED"},
		{"/plain", 500, apperr.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode(t, resp.Body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, body.Error.Message, "secret detail")
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(c.Locals(RequestIDKey).(string)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-123", string(body))
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestRecover(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, apperr.CodeInternalError, decode(t, resp.Body).Error.Code)
}

func TestSecurityHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	rl.lastGC = now

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per client")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(time.Hour)
	rl.Allow("c")
	assert.NotContains(t, rl.limiters, "a", "idle clients are evicted")
}

func TestRateLimiterHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(NewRateLimiter(0.001, 1).Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
}

func TestLatencyRecordsRoutePattern(t *testing.T) {
	reg := metrics.NewLatencyRegistry(10)
	app := fiber.New()
	app.Use(Latency(reg))
	app.Get("/messages/:id", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	for _, id := range []string{"1", "2"} {
		_, err := app.Test(httptest.NewRequest("GET", "/messages/"+id, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), reg.Stats("GET /messages/:id").Count)
}
