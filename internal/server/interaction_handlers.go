package server

import (
	"github.com/gofiber/fiber/v2"
)

type clapRequest struct {
	Amount *int `json:"amount"`
}

// Clap handles POST /api/posts/:id/claps. The amount defaults to one clap.
func (s *Server) Clap(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req clapRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}

	result, err := s.interactionService.Clap(c.UserContext(), postID, actorOf(c).UserID, amount)
	if err != nil {
		return respond(c, err)
	}
	status := fiber.StatusOK
	if result.IsNewLike {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(result)
}

// Unclap handles DELETE /api/posts/:id/claps
func (s *Server) Unclap(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.interactionService.Unclap(c.UserContext(), postID, actorOf(c).UserID); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetClaps handles GET /api/posts/:id/claps
func (s *Server) GetClaps(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.interactionService.LikeStats(c.UserContext(), postID, viewerID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(stats)
}

// Bookmark handles POST /api/posts/:id/bookmark
func (s *Server) Bookmark(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	bookmark, err := s.interactionService.Bookmark(c.UserContext(), postID, actorOf(c).UserID)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(bookmark)
}

// Unbookmark handles DELETE /api/posts/:id/bookmark
func (s *Server) Unbookmark(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.interactionService.Unbookmark(c.UserContext(), postID, actorOf(c).UserID); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetBookmarkStatus handles GET /api/posts/:id/bookmark
func (s *Server) GetBookmarkStatus(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	bookmarked, err := s.interactionService.IsBookmarked(c.UserContext(), postID, actorOf(c).UserID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"bookmarked": bookmarked})
}

// GetBookmarks handles GET /api/bookmarks
func (s *Server) GetBookmarks(c *fiber.Ctx) error {
	page, err := s.interactionService.ListBookmarks(c.UserContext(), actorOf(c).UserID, parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}
