package repository

import (
	"context"
	"time"

	"lumen/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// clapUpsertSQL adds to an existing clap row or creates it, clamped at MaxClaps,
// in one statement. The returned id equals the offered id only for a new row.
const clapUpsertSQL = `INSERT INTO likes (id, post_id, user_id, clap_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (post_id, user_id) DO UPDATE
SET clap_count = CASE
		WHEN likes.clap_count + excluded.clap_count > 50 THEN 50
		ELSE likes.clap_count + excluded.clap_count
	END,
	updated_at = excluded.updated_at
RETURNING id, clap_count`

// LikeRepository defines the clap counter operations.
type LikeRepository interface {
	Clap(ctx context.Context, postID, userID uuid.UUID, amount int, at time.Time) (*models.ClapResult, error)
	Unclap(ctx context.Context, postID, userID uuid.UUID) error
	Stats(ctx context.Context, postID uuid.UUID, viewerID *uuid.UUID) (*models.LikeStats, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new like repository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

type clapRow struct {
	ID        uuid.UUID
	ClapCount int
}

func (r *likeRepository) Clap(ctx context.Context, postID, userID uuid.UUID, amount int, at time.Time) (*models.ClapResult, error) {
	offered := uuid.New()
	var row clapRow
	err := r.db.WithContext(ctx).
		Raw(clapUpsertSQL, offered, postID, userID, amount, at, at).
		Scan(&row).Error
	if err != nil {
		return nil, wrap(err, "Like", postID)
	}
	return &models.ClapResult{
		TotalClaps: row.ClapCount,
		IsNewLike:  row.ID == offered,
	}, nil
}

func (r *likeRepository) Unclap(ctx context.Context, postID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Like{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Like", postID)
	}
	return nil
}

func (r *likeRepository) Stats(ctx context.Context, postID uuid.UUID, viewerID *uuid.UUID) (*models.LikeStats, error) {
	db := readDB(r.db).WithContext(ctx)

	var agg struct {
		LikeCount  int64
		TotalClaps int64
	}
	if err := db.Model(&models.Like{}).
		Select("COUNT(*) AS like_count, COALESCE(SUM(clap_count), 0) AS total_claps").
		Where("post_id = ?", postID).
		Scan(&agg).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	stats := &models.LikeStats{LikeCount: agg.LikeCount, TotalClaps: agg.TotalClaps}
	if viewerID == nil {
		return stats, nil
	}

	var mine []models.Like
	if err := db.Where("post_id = ? AND user_id = ?", postID, *viewerID).Limit(1).Find(&mine).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(mine) > 0 {
		stats.ViewerClapped = true
		stats.ViewerClaps = mine[0].ClapCount
	}
	return stats, nil
}
