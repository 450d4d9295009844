package repository

import (
	"context"

	"lumen/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookmarkRepository defines bookmark operations.
type BookmarkRepository interface {
	Create(ctx context.Context, bookmark *models.Bookmark) error
	Delete(ctx context.Context, postID, userID uuid.UUID) error
	Exists(ctx context.Context, postID, userID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page models.PageRequest) ([]*models.Bookmark, int64, error)
}

type bookmarkRepository struct {
	db *gorm.DB
}

// NewBookmarkRepository creates a new bookmark repository
func NewBookmarkRepository(db *gorm.DB) BookmarkRepository {
	return &bookmarkRepository{db: db}
}

func (r *bookmarkRepository) Create(ctx context.Context, bookmark *models.Bookmark) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Omit(clause.Associations).
		Create(bookmark)
	if res.Error != nil {
		return wrap(res.Error, "Bookmark", bookmark.PostID)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError(models.ReasonAlreadyBookmarked, "post is already bookmarked")
	}
	return nil
}

func (r *bookmarkRepository) Delete(ctx context.Context, postID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Bookmark{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Bookmark", postID)
	}
	return nil
}

func (r *bookmarkRepository) Exists(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).
		Model(&models.Bookmark{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *bookmarkRepository) ListByUser(ctx context.Context, userID uuid.UUID, page models.PageRequest) ([]*models.Bookmark, int64, error) {
	db := readDB(r.db).WithContext(ctx)

	var total int64
	if err := db.Model(&models.Bookmark{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var bookmarks []*models.Bookmark
	err := paginate(db.
		Preload("Post").
		Preload("Post.Author").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC"), page).
		Find(&bookmarks).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return bookmarks, total, nil
}
