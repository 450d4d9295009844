package server

import (
	"lumen/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type commentRequest struct {
	Content  string     `json:"content"`
	ParentID *uuid.UUID `json:"parent_id"`
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req commentRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	comment, err := s.commentService.AddComment(c.UserContext(), service.CreateCommentInput{
		Actor:    actorOf(c),
		PostID:   postID,
		ParentID: req.ParentID,
		Content:  req.Content,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page, err := s.commentService.ListComments(c.UserContext(), postID, parsePage(c), viewer(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// GetReplies handles GET /api/comments/:commentId/replies
func (s *Server) GetReplies(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}
	page, err := s.commentService.ListReplies(c.UserContext(), commentID, parsePage(c), viewer(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// UpdateComment handles PUT /api/comments/:commentId
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}
	var req commentRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	comment, err := s.commentService.EditComment(c.UserContext(), service.UpdateCommentInput{
		Actor:     actorOf(c),
		CommentID: commentID,
		Content:   req.Content,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(comment)
}

// DeleteComment handles DELETE /api/comments/:commentId. The tombstoned
// comment is returned; replies stay attached to it.
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}
	comment, err := s.commentService.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		Actor:     actorOf(c),
		CommentID: commentID,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(comment)
}
