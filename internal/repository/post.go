package repository

import (
	"context"
	"strings"
	"time"

	"lumen/internal/models"
	"lumen/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostFilter narrows a post listing.
type PostFilter struct {
	Status   models.PostStatus
	AuthorID *uuid.UUID
	Featured *bool
	TagSlug  string
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Post, error)
	SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Update saves post columns and replaces its tag set, provided the stored
	// updated_at still equals expected. Otherwise it returns a CONFLICT with
	// reason STALE_WRITE and changes nothing.
	Update(ctx context.Context, post *models.Post, expected time.Time) error
	// Delete removes the post with its comments, claps, bookmarks and tag
	// links under the same updated_at precondition as Update.
	Delete(ctx context.Context, id uuid.UUID, expected time.Time) error
	List(ctx context.Context, filter PostFilter, page models.PageRequest) ([]*models.Post, int64, error)
	// ForEachUpdatedSince streams posts with updated_at >= since in batches.
	ForEachUpdatedSince(ctx context.Context, since time.Time, batchSize int, fn func([]*models.Post) error) error
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
	ResolveTags(ctx context.Context, names []string) ([]models.Tag, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Tags", func(db *gorm.DB) *gorm.DB {
		return db.Order("tags.name ASC")
	})
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()
	err := r.db.WithContext(ctx).Omit("Author").Create(post).Error
	return wrap(err, "Post", post.Slug)
}

func (r *postRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	if err := r.withDetails(r.db.WithContext(ctx)).First(&post, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	if err := r.withDetails(readDB(r.db).WithContext(ctx)).Where("slug = ?", slug).First(&post).Error; err != nil {
		return nil, wrap(err, "Post", slug)
	}
	return &post, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var posts []*models.Post
	if err := r.withDetails(readDB(r.db).WithContext(ctx)).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// staleOrMissing explains a conditional write that matched no row.
func staleOrMissing(tx *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return models.NewConflictError(models.ReasonStaleWrite, "Post was modified concurrently")
}

func (r *postRepository) Update(ctx context.Context, post *models.Post, expected time.Time) error {
	defer observability.TrackQuery("update", "posts")()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).Where("id = ? AND updated_at = ?", post.ID, expected).Updates(map[string]interface{}{
			"title":        post.Title,
			"slug":         post.Slug,
			"subtitle":     post.Subtitle,
			"body":         post.Body,
			"read_time":    post.ReadTime,
			"status":       post.Status,
			"is_featured":  post.IsFeatured,
			"published_at": post.PublishedAt,
			"updated_at":   post.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return staleOrMissing(tx, post.ID)
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", post.ID).Error; err != nil {
			return err
		}
		if len(post.Tags) == 0 {
			return nil
		}
		links := make([]map[string]interface{}, 0, len(post.Tags))
		for _, tag := range post.Tags {
			links = append(links, map[string]interface{}{"post_id": post.ID, "tag_id": tag.ID})
		}
		return tx.Table("post_tags").Create(links).Error
	})
	return wrap(err, "Post", post.ID)
}

func (r *postRepository) Delete(ctx context.Context, id uuid.UUID, expected time.Time) error {
	defer observability.TrackQuery("delete", "posts")()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim the row first so a concurrent edit cannot slip in between.
		claim := tx.Model(&models.Post{}).Where("id = ? AND updated_at = ?", id, expected).Update("updated_at", expected)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return staleOrMissing(tx, id)
		}
		for _, dependent := range []interface{}{&models.Comment{}, &models.Like{}, &models.Bookmark{}} {
			if err := tx.Where("post_id = ?", id).Delete(dependent).Error; err != nil {
				return err
			}
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Post{}).Error
	})
	return wrap(err, "Post", id)
}

func (r *postRepository) List(ctx context.Context, filter PostFilter, page models.PageRequest) ([]*models.Post, int64, error) {
	db := readDB(r.db).WithContext(ctx)

	scoped := func(q *gorm.DB) *gorm.DB {
		q = q.Model(&models.Post{})
		if filter.Status != "" {
			q = q.Where("posts.status = ?", filter.Status)
		}
		if filter.AuthorID != nil {
			q = q.Where("posts.author_id = ?", *filter.AuthorID)
		}
		if filter.Featured != nil {
			q = q.Where("posts.is_featured = ?", *filter.Featured)
		}
		if filter.TagSlug != "" {
			q = q.Where("EXISTS (SELECT 1 FROM post_tags JOIN tags ON tags.id = post_tags.tag_id WHERE post_tags.post_id = posts.id AND tags.slug = ?)", filter.TagSlug)
		}
		return q
	}

	var total int64
	if err := scoped(db).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var posts []*models.Post
	err := paginate(r.withDetails(scoped(db)).
		Order("posts.published_at DESC").
		Order("posts.created_at DESC").
		Order("posts.id DESC"), page).
		Find(&posts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func (r *postRepository) ForEachUpdatedSince(ctx context.Context, since time.Time, batchSize int, fn func([]*models.Post) error) error {
	var batch []*models.Post
	res := r.withDetails(r.db.WithContext(ctx)).
		Where("updated_at >= ?", since).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	if res.Error != nil {
		return wrap(res.Error, "Post", nil)
	}
	return nil
}

func (r *postRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// ResolveTags returns the tags named, creating missing ones. Names are
// trimmed, lowercased for the slug and de-duplicated.
func (r *postRepository) ResolveTags(ctx context.Context, names []string) ([]models.Tag, error) {
	seen := make(map[string]bool, len(names))
	wanted := make([]models.Tag, 0, len(names))
	slugs := make([]string, 0, len(names))
	for _, n := range names {
		name := strings.TrimSpace(n)
		if name == "" {
			continue
		}
		slug := TagSlug(name)
		if seen[slug] {
			continue
		}
		seen[slug] = true
		wanted = append(wanted, models.Tag{Name: name, Slug: slug})
		slugs = append(slugs, slug)
	}
	if len(wanted) == 0 {
		return []models.Tag{}, nil
	}

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&wanted).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var tags []models.Tag
	if err := db.Where("slug IN ?", slugs).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tags, nil
}

// TagSlug lowercases a tag name and joins its words with dashes.
func TagSlug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
