package server

import (
	"lumen/internal/models"
	"lumen/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type createPostRequest struct {
	Title      string            `json:"title"`
	Subtitle   string            `json:"subtitle"`
	Body       string            `json:"body"`
	Status     models.PostStatus `json:"status"`
	Tags       []string          `json:"tags"`
	IsFeatured bool              `json:"is_featured"`
}

type updatePostRequest struct {
	Title      *string            `json:"title"`
	Subtitle   *string            `json:"subtitle"`
	Body       *string            `json:"body"`
	Status     *models.PostStatus `json:"status"`
	Tags       *[]string          `json:"tags"`
	IsFeatured *bool              `json:"is_featured"`
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		Actor:      actorOf(c),
		Title:      req.Title,
		Subtitle:   req.Subtitle,
		Body:       req.Body,
		Status:     req.Status,
		Tags:       req.Tags,
		IsFeatured: req.IsFeatured,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req updatePostRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		Actor:      actorOf(c),
		PostID:     id,
		Title:      req.Title,
		Subtitle:   req.Subtitle,
		Body:       req.Body,
		Status:     req.Status,
		Tags:       req.Tags,
		IsFeatured: req.IsFeatured,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postService.DeletePost(c.UserContext(), actorOf(c), id); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetPosts handles GET /api/posts?author=&featured=&tag=&page=&size=
func (s *Server) GetPosts(c *fiber.Ctx) error {
	in := service.ListPostsInput{
		Tag:  c.Query("tag"),
		Page: parsePage(c),
	}
	if raw := c.Query("author"); raw != "" {
		authorID, err := uuid.Parse(raw)
		if err != nil {
			return respond(c, models.NewValidationError("Invalid author ID"))
		}
		in.AuthorID = &authorID
	}
	if raw := c.Query("featured"); raw != "" {
		featured := c.QueryBool("featured")
		in.Featured = &featured
	}

	page, err := s.postService.ListPosts(c.UserContext(), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// GetMyPosts handles GET /api/posts/my?status=&page=&size=
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	status := models.PostStatus(c.Query("status"))
	page, err := s.postService.ListMyPosts(c.UserContext(), actorOf(c), status, parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// SearchPosts handles GET /api/posts/search?q=&tag=&page=&size=
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	page, err := s.searchService.SearchPosts(c.UserContext(), c.Query("q"), c.Query("tag"), parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(page)
}

// GetPost handles GET /api/posts/:slug. A UUID addresses the post directly
// and lets its author or a moderator see unpublished posts; a slug serves
// readers and counts the view.
func (s *Server) GetPost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	param := c.Params("slug")

	if id, err := uuid.Parse(param); err == nil {
		post, err := s.postService.GetPost(ctx, id, viewer(c))
		if err != nil {
			return respond(c, err)
		}
		return c.JSON(post)
	}

	post, err := s.postService.GetPostBySlug(ctx, param, viewerKey(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// GetPostStats handles GET /api/posts/:id/stats?days=
func (s *Server) GetPostStats(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	days := c.QueryInt("days", service.DefaultStatsDays)
	if limit := s.config.VisitRetentionDays; limit > 0 && days > limit {
		days = limit
	}

	stats, err := s.postService.GetPostStats(c.UserContext(), id, days, viewer(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(stats)
}
