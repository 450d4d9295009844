// Package middleware provides authentication, logging, tracing and rate limiting middleware.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"lumen/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	actorLocal = "actor"

	provisionedCacheSize = 4096
)

// UserProvisioner creates the account row for a token subject on first use.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, user *models.User) error
}

// Authenticator verifies bearer tokens minted by the identity provider. The
// token subject is the actor's user id and the "role" claim its platform role.
type Authenticator struct {
	secret      []byte
	provisioner UserProvisioner
	provisioned *lru.Cache[uuid.UUID, struct{}]
}

// NewAuthenticator creates an Authenticator for HMAC-signed tokens.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// WithProvisioner makes Required create a user row for token subjects that
// have none yet. Subjects already handled are remembered in a bounded cache.
func (a *Authenticator) WithProvisioner(p UserProvisioner) *Authenticator {
	cache, err := lru.New[uuid.UUID, struct{}](provisionedCacheSize)
	if err != nil {
		panic(err)
	}
	a.provisioner = p
	a.provisioned = cache
	return a
}

// ParseToken validates a raw token and returns the actor it names.
func (a *Authenticator) ParseToken(raw string) (models.Actor, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.Actor{}, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, models.NewUnauthorizedError("Invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Actor{}, models.NewUnauthorizedError("Invalid token structure - missing subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return models.Actor{}, models.NewUnauthorizedError("Invalid user ID in token")
	}

	role := models.RoleReader
	if raw, ok := claims["role"].(string); ok && raw != "" {
		role = models.Role(raw)
		if !role.Valid() {
			return models.Actor{}, models.NewUnauthorizedError("Invalid role in token")
		}
	}

	return models.Actor{UserID: userID, Role: role, Username: usernameClaim(claims)}, nil
}

func usernameClaim(claims jwt.MapClaims) string {
	for _, key := range []string{"preferred_username", "username", "name"} {
		if v, ok := claims[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				if len(v) > models.MaxUsernameLength {
					v = strings.ToValidUTF8(v[:models.MaxUsernameLength], "")
				}
				return v
			}
		}
	}
	return ""
}

func (a *Authenticator) provision(ctx context.Context, actor models.Actor) error {
	if a.provisioner == nil {
		return nil
	}
	if _, ok := a.provisioned.Get(actor.UserID); ok {
		return nil
	}
	user := &models.User{ID: actor.UserID, Username: actor.Username, Role: actor.Role}
	if err := a.provisioner.EnsureUser(ctx, user); err != nil {
		return err
	}
	a.provisioned.Add(actor.UserID, struct{}{})
	return nil
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get("Authorization")
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (a *Authenticator) attach(c *fiber.Ctx, actor models.Actor) {
	c.Locals(actorLocal, actor)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, actor.UserID.String()))
}

// Required rejects requests without a valid bearer token.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Authorization header required"))
		}
		raw, ok := bearerToken(c)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Invalid authorization header format"))
		}
		actor, err := a.ParseToken(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		a.attach(c, actor)
		if err := a.provision(c.UserContext(), actor); err != nil {
			Logger.ErrorContext(c.UserContext(), "Failed to provision user",
				slog.String("user_id", actor.UserID.String()),
				slog.String("error", err.Error()),
			)
			return models.RespondWithError(c, models.HTTPStatus(err), err)
		}
		return c.Next()
	}
}

// Optional attaches the actor when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw, ok := bearerToken(c); ok {
			if actor, err := a.ParseToken(raw); err == nil {
				a.attach(c, actor)
			}
		}
		return c.Next()
	}
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(c *fiber.Ctx) (models.Actor, bool) {
	actor, ok := c.Locals(actorLocal).(models.Actor)
	return actor, ok
}
