package repository

import (
	"context"
	"errors"
	"time"

	"lumen/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	// Create inserts a comment after checking, in the same transaction, that
	// the post exists and that the parent (if any) belongs to the same post.
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	// UpdateContent rewrites content only if authorID owns the comment and it
	// is not deleted.
	UpdateContent(ctx context.Context, id, authorID uuid.UUID, content string, at time.Time) (*models.Comment, error)
	// MarkDeleted tombstones the comment. It reports false when the comment
	// was already deleted, in which case nothing changes.
	MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListTopLevel(ctx context.Context, postID uuid.UUID, page models.PageRequest) ([]*models.Comment, int64, error)
	ListReplies(ctx context.Context, parentID uuid.UUID, page models.PageRequest) ([]*models.Comment, int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var posts int64
		if err := tx.Model(&models.Post{}).Where("id = ?", comment.PostID).Count(&posts).Error; err != nil {
			return err
		}
		if posts == 0 {
			return models.NewNotFoundError("Post", comment.PostID)
		}

		if comment.ParentID != nil {
			var parent models.Comment
			if err := tx.Select("id", "post_id").First(&parent, "id = ?", *comment.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewNotFoundError("Comment", *comment.ParentID)
				}
				return err
			}
			if parent.PostID != comment.PostID {
				return models.NewInvalidParentError(*comment.ParentID)
			}
		}

		return tx.Create(comment).Error
	})
	return wrap(err, "Comment", comment.ID)
}

func (r *commentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Author").First(&comment, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "Comment", id)
	}
	return &comment, nil
}

func (r *commentRepository) UpdateContent(ctx context.Context, id, authorID uuid.UUID, content string, at time.Time) (*models.Comment, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ? AND author_id = ? AND is_deleted = ?", id, authorID, false).
		Updates(map[string]interface{}{"content": content, "updated_at": at})
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if current.AuthorID != authorID {
			return nil, models.NewForbiddenError("only the author can edit this comment")
		}
		if current.IsDeleted {
			return nil, models.NewInvalidStateError(models.ReasonCommentDeleted, "comment has been deleted")
		}
	}
	return current, nil
}

func (r *commentRepository) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"content":    models.CommentTombstone,
			"is_deleted": true,
			"deleted_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *commentRepository) ListTopLevel(ctx context.Context, postID uuid.UUID, page models.PageRequest) ([]*models.Comment, int64, error) {
	db := readDB(r.db).WithContext(ctx)

	var total int64
	if err := db.Model(&models.Comment{}).
		Where("post_id = ? AND parent_id IS NULL", postID).
		Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var comments []*models.Comment
	err := paginate(db.
		Select("comments.*, (SELECT COUNT(*) FROM comments AS replies WHERE replies.parent_id = comments.id) AS reply_count").
		Preload("Author").
		Where("comments.post_id = ? AND comments.parent_id IS NULL", postID).
		Order("comments.created_at DESC").
		Order("comments.id DESC"), page).
		Find(&comments).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return comments, total, nil
}

func (r *commentRepository) ListReplies(ctx context.Context, parentID uuid.UUID, page models.PageRequest) ([]*models.Comment, int64, error) {
	db := readDB(r.db).WithContext(ctx)

	var total int64
	if err := db.Model(&models.Comment{}).Where("parent_id = ?", parentID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var comments []*models.Comment
	err := paginate(db.
		Preload("Author").
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Order("id ASC"), page).
		Find(&comments).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return comments, total, nil
}
