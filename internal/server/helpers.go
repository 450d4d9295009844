package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"lumen/internal/middleware"
	"lumen/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parsePage reads the 1-based page and size query parameters.
func parsePage(c *fiber.Ctx) models.PageRequest {
	return models.PageRequest{
		Page: c.QueryInt("page", 1),
		Size: c.QueryInt("size", models.DefaultPageSize),
	}.Normalize()
}

// parseUUID extracts a route parameter by name as a UUID.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseUUID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return uuid.Nil, errResponseWritten
	}
	return id, nil
}

// parseBody decodes the JSON request body into dst. An empty body leaves dst
// untouched.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "commentId" -> "comment ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// respond writes err with the status its code maps to. Errors that are not
// AppErrors are treated as internal and logged.
func respond(c *fiber.Ctx, err error) error {
	if models.ErrorCode(err) == "" {
		err = models.NewInternalError(err)
	}
	status := models.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err)
}

// actorOf returns the authenticated actor. Routes using it sit behind
// Authenticator.Required.
func actorOf(c *fiber.Ctx) models.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

// viewer returns the signed-in actor, or nil for anonymous readers.
func viewer(c *fiber.Ctx) *models.Actor {
	if actor, ok := middleware.ActorFrom(c); ok {
		return &actor
	}
	return nil
}

func viewerID(c *fiber.Ctx) *uuid.UUID {
	if actor, ok := middleware.ActorFrom(c); ok {
		id := actor.UserID
		return &id
	}
	return nil
}

// viewerKey identifies a reader for unique-view counting: the user id when
// signed in, otherwise the client address and user agent.
func viewerKey(c *fiber.Ctx) string {
	if actor, ok := middleware.ActorFrom(c); ok {
		return "user:" + actor.UserID.String()
	}
	return "anon:" + c.IP() + "|" + c.Get(fiber.HeaderUserAgent)
}
