package repository

import (
	"context"

	"lumen/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines follow graph operations.
type FollowRepository interface {
	Create(ctx context.Context, follow *models.Follow) error
	Delete(ctx context.Context, followerID, followedID uuid.UUID) error
	Stats(ctx context.Context, userID uuid.UUID, viewerID *uuid.UUID) (*models.FollowStats, error)
	ListFollowers(ctx context.Context, userID uuid.UUID, page models.PageRequest) ([]*models.User, int64, error)
	ListFollowing(ctx context.Context, userID uuid.UUID, page models.PageRequest) ([]*models.User, int64, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Create(ctx context.Context, follow *models.Follow) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followed_id"}},
			DoNothing: true,
		}).
		Create(follow)
	if res.Error != nil {
		return wrap(res.Error, "Follow", follow.FollowedID)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError(models.ReasonAlreadyFollowing, "already following this user")
	}
	return nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, followedID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Follow", followedID)
	}
	return nil
}

func (r *followRepository) Stats(ctx context.Context, userID uuid.UUID, viewerID *uuid.UUID) (*models.FollowStats, error) {
	db := readDB(r.db).WithContext(ctx)
	stats := &models.FollowStats{}

	if err := db.Model(&models.Follow{}).Where("followed_id = ?", userID).Count(&stats.FollowerCount).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&stats.FollowingCount).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if viewerID != nil && *viewerID != userID {
		var n int64
		if err := db.Model(&models.Follow{}).
			Where("follower_id = ? AND followed_id = ?", *viewerID, userID).
			Count(&n).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		stats.ViewerFollows = n > 0
	}
	return stats, nil
}

func (r *followRepository) ListFollowers(ctx context.Context, userID uuid.UUID, page models.PageRequest) ([]*models.User, int64, error) {
	return r.listEdges(ctx, "follows.follower_id", "follows.followed_id", userID, page)
}

func (r *followRepository) ListFollowing(ctx context.Context, userID uuid.UUID, page models.PageRequest) ([]*models.User, int64, error) {
	return r.listEdges(ctx, "follows.followed_id", "follows.follower_id", userID, page)
}

// listEdges returns the users on the other side of userID's edges, newest edge first.
func (r *followRepository) listEdges(ctx context.Context, joinCol, matchCol string, userID uuid.UUID, page models.PageRequest) ([]*models.User, int64, error) {
	db := readDB(r.db).WithContext(ctx)

	var total int64
	if err := db.Table("follows").Where(matchCol+" = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var users []*models.User
	err := paginate(db.
		Model(&models.User{}).
		Joins("JOIN follows ON users.id = "+joinCol).
		Where(matchCol+" = ?", userID).
		Order("follows.created_at DESC").
		Order("follows.id DESC"), page).
		Find(&users).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}
