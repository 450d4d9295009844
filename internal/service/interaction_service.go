package service

import (
	"context"
	"fmt"
	"time"

	"lumen/internal/models"
	"lumen/internal/observability"
	"lumen/internal/repository"

	"github.com/google/uuid"
)

// InteractionService owns the per-post reader counters: claps and bookmarks.
type InteractionService struct {
	likeRepo     repository.LikeRepository
	bookmarkRepo repository.BookmarkRepository
	postRepo     repository.PostRepository
	now          func() time.Time
}

func NewInteractionService(
	likeRepo repository.LikeRepository,
	bookmarkRepo repository.BookmarkRepository,
	postRepo repository.PostRepository,
	now func() time.Time,
) *InteractionService {
	return &InteractionService{
		likeRepo:     likeRepo,
		bookmarkRepo: bookmarkRepo,
		postRepo:     postRepo,
		now:          clock(now),
	}
}

func (s *InteractionService) requirePost(ctx context.Context, postID uuid.UUID) error {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("Post", postID)
	}
	return nil
}

// Clap adds amount claps from userID to a post. A user's total on one post
// never exceeds models.MaxClaps; excess claps are absorbed.
func (s *InteractionService) Clap(ctx context.Context, postID, userID uuid.UUID, amount int) (*models.ClapResult, error) {
	if amount < 1 || amount > models.MaxClaps {
		return nil, models.NewValidationError(fmt.Sprintf("amount must be between 1 and %d", models.MaxClaps))
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}

	res, err := s.likeRepo.Clap(ctx, postID, userID, amount, s.now())
	if err != nil {
		return nil, err
	}
	outcome := "existing"
	if res.IsNewLike {
		outcome = "new"
	}
	observability.ClapsTotal.WithLabelValues(outcome).Inc()
	return res, nil
}

func (s *InteractionService) Unclap(ctx context.Context, postID, userID uuid.UUID) error {
	return s.likeRepo.Unclap(ctx, postID, userID)
}

// LikeStats aggregates claps on a post; viewerID may be nil for anonymous readers.
func (s *InteractionService) LikeStats(ctx context.Context, postID uuid.UUID, viewerID *uuid.UUID) (*models.LikeStats, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	return s.likeRepo.Stats(ctx, postID, viewerID)
}

func (s *InteractionService) Bookmark(ctx context.Context, postID, userID uuid.UUID) (*models.Bookmark, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	bookmark := &models.Bookmark{
		PostID:    postID,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.bookmarkRepo.Create(ctx, bookmark); err != nil {
		return nil, err
	}
	return bookmark, nil
}

func (s *InteractionService) Unbookmark(ctx context.Context, postID, userID uuid.UUID) error {
	return s.bookmarkRepo.Delete(ctx, postID, userID)
}

func (s *InteractionService) IsBookmarked(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	return s.bookmarkRepo.Exists(ctx, postID, userID)
}

// ListBookmarks returns the user's reading list, most recently saved first.
func (s *InteractionService) ListBookmarks(ctx context.Context, userID uuid.UUID, page models.PageRequest) (models.Page[*models.Bookmark], error) {
	page = page.Normalize()
	bookmarks, total, err := s.bookmarkRepo.ListByUser(ctx, userID, page)
	if err != nil {
		return models.Page[*models.Bookmark]{}, err
	}
	return models.NewPage(bookmarks, total, page), nil
}
