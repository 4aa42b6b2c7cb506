package response

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPagination(t *testing.T) {
	tests := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, 10},
		{"?page=3&page_size=20", 3, 20},
		{"?page=0&page_size=-1", 1, 10},
		{"?page_size=500", 1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := fiber.New()
			var got *PaginationParams
			app.Get("/", func(c *fiber.Ctx) error {
				got = GetPagination(c, 10, 100)
				return nil
			})

			_, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.page, got.Page)
			assert.Equal(t, tt.pageSize, got.PageSize)
		})
	}
}

func TestErrorEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return Error(c, 404, "NOT_FOUND", "message not found", nil)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var r Response
	require.NoError(t, json.Unmarshal(body, &r))
	assert.False(t, r.Success)
	assert.Equal(t, "NOT_FOUND", r.Error.Code)
}
