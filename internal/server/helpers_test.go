package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"commentId", "comment ID"},
		{"parentCommentId", "parent comment ID"},
		{"slug", "slug"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func pageApp() *fiber.App {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePage(c)
		return c.JSON(fiber.Map{"page": p.Page, "size": p.Size})
	})
	return app
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		page  float64
		size  float64
	}{
		{"", 1, 20},
		{"?page=3&size=10", 3, 10},
		{"?page=0&size=-4", 1, 20},
		{"?size=1000", 1, 100},
		{"?page=abc", 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := pageApp().Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.page, body["page"])
			assert.Equal(t, tt.size, body["size"])
		})
	}
}

func TestParseUUID(t *testing.T) {
	app := fiber.New()
	app.Get("/comments/:commentId", func(c *fiber.Ctx) error {
		id, err := parseUUID(c, "commentId")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	id := uuid.New()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/comments/"+id.String(), nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ok map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	assert.Equal(t, id.String(), ok["id"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/comments/42", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var bad map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bad))
	assert.Equal(t, "Invalid comment ID", bad["error"])
	assert.Equal(t, "VALIDATION_ERROR", bad["code"])
}
