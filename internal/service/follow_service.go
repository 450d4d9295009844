package service

import (
	"context"
	"time"

	"lumen/internal/models"
	"lumen/internal/repository"

	"github.com/google/uuid"
)

type FollowService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	now        func() time.Time
}

func NewFollowService(followRepo repository.FollowRepository, userRepo repository.UserRepository, now func() time.Time) *FollowService {
	return &FollowService{
		followRepo: followRepo,
		userRepo:   userRepo,
		now:        clock(now),
	}
}

// Follow adds the edge follower -> followed. Self-follows are refused before
// anything is looked up.
func (s *FollowService) Follow(ctx context.Context, followerID, followedID uuid.UUID) (*models.Follow, error) {
	if followerID == followedID {
		return nil, models.NewConflictError(models.ReasonSelfFollow, "You cannot follow yourself")
	}
	if err := s.requireUser(ctx, followedID); err != nil {
		return nil, err
	}

	follow := &models.Follow{
		FollowerID: followerID,
		FollowedID: followedID,
		CreatedAt:  s.now(),
	}
	if err := s.followRepo.Create(ctx, follow); err != nil {
		return nil, err
	}
	return follow, nil
}

func (s *FollowService) Unfollow(ctx context.Context, followerID, followedID uuid.UUID) error {
	return s.followRepo.Delete(ctx, followerID, followedID)
}

// Stats counts followers and followees of userID; viewerID may be nil.
func (s *FollowService) Stats(ctx context.Context, userID uuid.UUID, viewerID *uuid.UUID) (*models.FollowStats, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.followRepo.Stats(ctx, userID, viewerID)
}

func (s *FollowService) ListFollowers(ctx context.Context, userID uuid.UUID, page models.PageRequest) (models.Page[*models.User], error) {
	return s.listEdges(ctx, userID, page, s.followRepo.ListFollowers)
}

func (s *FollowService) ListFollowing(ctx context.Context, userID uuid.UUID, page models.PageRequest) (models.Page[*models.User], error) {
	return s.listEdges(ctx, userID, page, s.followRepo.ListFollowing)
}

func (s *FollowService) listEdges(
	ctx context.Context,
	userID uuid.UUID,
	page models.PageRequest,
	list func(context.Context, uuid.UUID, models.PageRequest) ([]*models.User, int64, error),
) (models.Page[*models.User], error) {
	page = page.Normalize()
	if err := s.requireUser(ctx, userID); err != nil {
		return models.Page[*models.User]{}, err
	}
	users, total, err := list(ctx, userID, page)
	if err != nil {
		return models.Page[*models.User]{}, err
	}
	return models.NewPage(users, total, page), nil
}

func (s *FollowService) requireUser(ctx context.Context, id uuid.UUID) error {
	exists, err := s.userRepo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", id)
	}
	return nil
}
