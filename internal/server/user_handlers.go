package server

import (
	"strings"

	"lumen/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// GetUsers handles GET /api/users?role=&page=&size=
func (s *Server) GetUsers(c *fiber.Ctx) error {
	role := models.Role(strings.ToLower(c.Query("role")))
	page, err := s.userService.ListUsers(c.UserContext(), role, parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// GetUser handles GET /api/users/:id. The parameter is a user id or a
// username.
func (s *Server) GetUser(c *fiber.Ctx) error {
	ctx := c.UserContext()
	param := c.Params("id")

	var (
		user *models.User
		err  error
	)
	if id, parseErr := uuid.Parse(param); parseErr == nil {
		user, err = s.userService.GetUserByID(ctx, id)
	} else {
		user, err = s.userService.GetUserByUsername(ctx, param)
	}
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(user)
}

// Follow handles POST /api/users/:id/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	userID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	follow, err := s.followService.Follow(c.UserContext(), actorOf(c).UserID, userID)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(follow)
}

// Unfollow handles DELETE /api/users/:id/follow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	userID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.followService.Unfollow(c.UserContext(), actorOf(c).UserID, userID); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetFollowStats handles GET /api/users/:id/follow-stats
func (s *Server) GetFollowStats(c *fiber.Ctx) error {
	userID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.followService.Stats(c.UserContext(), userID, viewerID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(stats)
}

// GetFollowers handles GET /api/users/:id/followers
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	userID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page, err := s.followService.ListFollowers(c.UserContext(), userID, parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// GetFollowing handles GET /api/users/:id/following
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	userID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page, err := s.followService.ListFollowing(c.UserContext(), userID, parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}
