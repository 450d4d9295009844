package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lumen/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthenticator_Required(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	app := fiber.New()
	app.Get("/test", auth.Required(), func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"user_id": actor.UserID.String(), "role": string(actor.Role)})
	})

	userID := uuid.New()

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedRole   string
	}{
		{
			name: "valid token with role",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": userID.String(), "role": "editor", "exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusOK,
			expectedRole:   "editor",
		},
		{
			name: "missing role defaults to reader",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": userID.String(), "exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusOK,
			expectedRole:   "reader",
		},
		{
			name:           "missing header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid format",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": userID.String(), "exp": time.Now().Add(-time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "no expiry",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": userID.String(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			authHeader: "Bearer " + signToken(t, "another-secret-another-secret-another", jwt.MapClaims{
				"sub": userID.String(), "exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "subject is not a uuid",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": "123", "exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown role",
			authHeader: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": userID.String(), "role": "overlord", "exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, userID.String(), body["user_id"])
				assert.Equal(t, tt.expectedRole, body["role"])
			} else {
				var body models.ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, models.CodeUnauthorized, body.Code)
			}
		})
	}
}

func TestAuthenticator_Optional(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	app := fiber.New()
	app.Get("/test", auth.Optional(), func(c *fiber.Ctx) error {
		_, ok := ActorFrom(c)
		return c.JSON(fiber.Map{"authenticated": ok})
	})

	check := func(header string, want bool) {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, want, body["authenticated"])
	}

	check("", false)
	check("Bearer garbage", false)
	check("Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix(),
	}), true)
}

type recordingProvisioner struct {
	mu    sync.Mutex
	users []models.User
	err   error
}

func (p *recordingProvisioner) EnsureUser(_ context.Context, user *models.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, *user)
	return p.err
}

func TestAuthenticator_RequiredProvisionsUsers(t *testing.T) {
	prov := &recordingProvisioner{}
	auth := NewAuthenticator(testSecret).WithProvisioner(prov)
	app := fiber.New()
	app.Get("/test", auth.Required(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	userID := uuid.New()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":                userID.String(),
		"role":               "author",
		"preferred_username": "  grace  ",
		"exp":                time.Now().Add(time.Hour).Unix(),
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	require.Len(t, prov.users, 1, "a subject is provisioned once")
	assert.Equal(t, userID, prov.users[0].ID)
	assert.Equal(t, "grace", prov.users[0].Username)
	assert.Equal(t, models.RoleAuthor, prov.users[0].Role)
}

func TestAuthenticator_RequiredProvisioningFailure(t *testing.T) {
	prov := &recordingProvisioner{err: models.NewConflictError(models.ReasonDuplicate, "Username \"grace\" is already taken")}
	auth := NewAuthenticator(testSecret).WithProvisioner(prov)
	app := fiber.New()
	app.Get("/test", auth.Required(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.NewString(), "username": "grace", "exp": time.Now().Add(time.Hour).Unix(),
	})
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	}
	assert.Len(t, prov.users, 2, "failures are not cached")
}

func TestUsernameClaim(t *testing.T) {
	long := strings.Repeat("x", models.MaxUsernameLength+10)
	assert.Equal(t, "a", usernameClaim(jwt.MapClaims{"preferred_username": "a", "username": "b"}))
	assert.Equal(t, "b", usernameClaim(jwt.MapClaims{"preferred_username": " ", "username": "b"}))
	assert.Equal(t, "c", usernameClaim(jwt.MapClaims{"name": "c"}))
	assert.Equal(t, "", usernameClaim(jwt.MapClaims{"name": 7}))
	assert.Len(t, usernameClaim(jwt.MapClaims{"username": long}), models.MaxUsernameLength)
}
