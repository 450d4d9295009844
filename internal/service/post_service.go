package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lumen/internal/featureflags"
	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/search"
	"lumen/internal/validation"

	"github.com/google/uuid"
)

// DefaultStatsDays is the length of the daily visit series in post stats.
const DefaultStatsDays = 7

// maxSlugAttempts bounds the suffix search for a free slug.
const maxSlugAttempts = 50

type PostService struct {
	postRepo repository.PostRepository
	index    IndexSink
	views    ViewTracker
	flags    *featureflags.Manager
	now      func() time.Time
}

type CreatePostInput struct {
	Actor      models.Actor
	Title      string
	Subtitle   string
	Body       string
	Status     models.PostStatus
	Tags       []string
	IsFeatured bool
}

// UpdatePostInput changes only the fields that are set.
type UpdatePostInput struct {
	Actor      models.Actor
	PostID     uuid.UUID
	Title      *string
	Subtitle   *string
	Body       *string
	Status     *models.PostStatus
	Tags       *[]string
	IsFeatured *bool
}

type ListPostsInput struct {
	AuthorID *uuid.UUID
	Featured *bool
	Tag      string
	Page     models.PageRequest
}

func NewPostService(
	postRepo repository.PostRepository,
	index IndexSink,
	views ViewTracker,
	flags *featureflags.Manager,
	now func() time.Time,
) *PostService {
	return &PostService{
		postRepo: postRepo,
		index:    index,
		views:    views,
		flags:    flags,
		now:      clock(now),
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if !in.Actor.Role.CanAuthor() {
		return nil, models.NewForbiddenError("Your role cannot publish posts")
	}
	if err := validation.ValidatePost(in.Title, in.Subtitle, in.Body); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateTags(in.Tags); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	status := in.Status
	if status == "" {
		status = models.PostStatusDraft
	}
	if !status.Valid() {
		return nil, models.NewValidationError("Invalid status")
	}

	slug, err := s.uniqueSlug(ctx, in.Title, uuid.Nil)
	if err != nil {
		return nil, err
	}
	tags, err := s.postRepo.ResolveTags(ctx, in.Tags)
	if err != nil {
		return nil, err
	}

	at := s.now()
	post := &models.Post{
		Title:      strings.TrimSpace(in.Title),
		Slug:       slug,
		Subtitle:   strings.TrimSpace(in.Subtitle),
		Body:       in.Body,
		ReadTime:   validation.ReadTime(in.Body),
		Status:     status,
		IsFeatured: in.IsFeatured,
		AuthorID:   in.Actor.UserID,
		Tags:       tags,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if status == models.PostStatusPublished {
		post.PublishedAt = &at
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	created, err := s.postRepo.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.syncIndex(created, false)
	return created, nil
}

// writeAttempts bounds the read-modify-write retries of UpdatePost and
// DeletePost when another writer commits first.
const writeAttempts = 3

// UpdatePost applies in to the stored post. The write is conditional on the
// version that was read, so concurrent edits commit in version order and the
// index sees the last committed state at the highest version.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	for attempt := 1; ; attempt++ {
		updated, wasPublished, err := s.updateOnce(ctx, in)
		if err != nil {
			if models.ErrorReason(err) == models.ReasonStaleWrite && attempt < writeAttempts {
				continue
			}
			return nil, err
		}
		s.syncIndex(updated, wasPublished)
		return updated, nil
	}
}

func (s *PostService) updateOnce(ctx context.Context, in UpdatePostInput) (*models.Post, bool, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, false, err
	}
	if !canModerate(in.Actor, post.AuthorID) {
		return nil, false, models.NewForbiddenError("You can only edit your own posts")
	}
	wasPublished := post.Published()
	readVersion := post.UpdatedAt

	title, subtitle, body := post.Title, post.Subtitle, post.Body
	if in.Title != nil {
		title = *in.Title
	}
	if in.Subtitle != nil {
		subtitle = *in.Subtitle
	}
	if in.Body != nil {
		body = *in.Body
	}
	if err := validation.ValidatePost(title, subtitle, body); err != nil {
		return nil, false, models.NewValidationError(err.Error())
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, false, models.NewValidationError("Invalid status")
	}

	if title = strings.TrimSpace(title); title != post.Title {
		slug, err := s.uniqueSlug(ctx, title, post.ID)
		if err != nil {
			return nil, false, err
		}
		post.Title = title
		post.Slug = slug
	}
	post.Subtitle = strings.TrimSpace(subtitle)
	if body != post.Body {
		post.Body = body
		post.ReadTime = validation.ReadTime(body)
	}
	if in.IsFeatured != nil {
		post.IsFeatured = *in.IsFeatured
	}
	if in.Tags != nil {
		if err := validation.ValidateTags(*in.Tags); err != nil {
			return nil, false, models.NewValidationError(err.Error())
		}
		tags, err := s.postRepo.ResolveTags(ctx, *in.Tags)
		if err != nil {
			return nil, false, err
		}
		post.Tags = tags
	}

	at := after(s.now(), post.UpdatedAt)
	if in.Status != nil {
		post.Status = *in.Status
		if post.Status == models.PostStatusPublished && post.PublishedAt == nil {
			post.PublishedAt = &at
		}
	}
	post.UpdatedAt = at

	if err := s.postRepo.Update(ctx, post, readVersion); err != nil {
		return nil, false, err
	}

	updated, err := s.postRepo.GetByID(ctx, post.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, wasPublished, nil
}

// DeletePost removes a post with everything hanging off it, then drops it
// from the index and the view store.
func (s *PostService) DeletePost(ctx context.Context, actor models.Actor, postID uuid.UUID) error {
	var post *models.Post
	for attempt := 1; ; attempt++ {
		var err error
		post, err = s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if !canModerate(actor, post.AuthorID) {
			return models.NewForbiddenError("You can only delete your own posts")
		}
		err = s.postRepo.Delete(ctx, postID, post.UpdatedAt)
		if err == nil {
			break
		}
		if models.ErrorReason(err) != models.ReasonStaleWrite || attempt >= writeAttempts {
			return err
		}
	}

	if s.index != nil {
		s.index.EnqueueRemove(postID, after(s.now(), post.UpdatedAt))
	}
	if s.views != nil {
		if err := s.views.Forget(ctx, postID); err != nil {
			middleware.Logger.WarnContext(ctx, "Failed to drop view analytics for deleted post",
				slog.String("post_id", postID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// syncIndex hands the committed state of post to the index. Published posts
// are upserted; a post that just left the published state is removed at
// its new version.
func (s *PostService) syncIndex(post *models.Post, wasPublished bool) {
	if s.index == nil {
		return
	}
	switch {
	case post.Published():
		s.index.EnqueueUpsert(search.Project(post))
	case wasPublished:
		s.index.EnqueueRemove(post.ID, post.UpdatedAt)
	}
}

func (s *PostService) uniqueSlug(ctx context.Context, title string, excludeID uuid.UUID) (string, error) {
	base := validation.Slugify(title)
	slug := base
	for n := 1; n <= maxSlugAttempts; n++ {
		taken, err := s.postRepo.SlugExists(ctx, slug, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = validation.WithSuffix(base, n)
	}
	return validation.WithSuffix(base, int(s.now().UnixMicro()%1_000_000)), nil
}

// GetPostBySlug returns a published post and counts the read. viewerKey
// identifies the reader for unique-view counting (a user id or a client
// fingerprint); an empty key skips the counting.
func (s *PostService) GetPostBySlug(ctx context.Context, slug, viewerKey string) (*models.Post, error) {
	post, err := s.postRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !post.Published() {
		return nil, models.NewNotFoundError("Post", slug)
	}

	if s.views != nil && viewerKey != "" {
		if s.views.RegisterView(ctx, post.ID, viewerKey) {
			post.ViewCount++
		}
		if s.flags.Enabled(featureflags.DailyVisits, post.ID.String()) {
			s.views.RecordDailyVisit(ctx, post.ID)
		}
	}
	return post, nil
}

// GetPost returns a post by id. Unpublished posts are visible to their
// author and elevated roles only.
func (s *PostService) GetPost(ctx context.Context, id uuid.UUID, viewer *models.Actor) (*models.Post, error) {
	return visiblePost(ctx, s.postRepo, id, viewer)
}

// ListPosts lists published posts, newest publication first.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) (models.Page[*models.Post], error) {
	page := in.Page.Normalize()
	filter := repository.PostFilter{
		Status:   models.PostStatusPublished,
		AuthorID: in.AuthorID,
		Featured: in.Featured,
	}
	if tag := strings.TrimSpace(in.Tag); tag != "" {
		filter.TagSlug = repository.TagSlug(tag)
	}

	posts, total, err := s.postRepo.List(ctx, filter, page)
	if err != nil {
		return models.Page[*models.Post]{}, err
	}
	return models.NewPage(posts, total, page), nil
}

// ListMyPosts lists the actor's own posts in any status, or only those in
// status when it is set.
func (s *PostService) ListMyPosts(ctx context.Context, actor models.Actor, status models.PostStatus, page models.PageRequest) (models.Page[*models.Post], error) {
	if status != "" && !status.Valid() {
		return models.Page[*models.Post]{}, models.NewValidationError("Unknown post status " + string(status))
	}
	page = page.Normalize()
	authorID := actor.UserID
	posts, total, err := s.postRepo.List(ctx, repository.PostFilter{Status: status, AuthorID: &authorID}, page)
	if err != nil {
		return models.Page[*models.Post]{}, err
	}
	return models.NewPage(posts, total, page), nil
}

// GetPostStats reports the exact view count, the approximate unique-view
// estimate and the recent daily visits. Analytics failures degrade to zero
// values. Unpublished posts follow GetPost's visibility.
func (s *PostService) GetPostStats(ctx context.Context, id uuid.UUID, days int, viewer *models.Actor) (*models.PostStats, error) {
	post, err := visiblePost(ctx, s.postRepo, id, viewer)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultStatsDays
	}

	stats := &models.PostStats{
		PostID:      post.ID,
		ViewCount:   post.ViewCount,
		DailyVisits: []models.DailyVisit{},
	}
	if s.views == nil {
		return stats, nil
	}

	if estimate, err := s.views.EstimateUniqueViews(ctx, id); err == nil {
		stats.EstimatedUnique = estimate
	} else {
		middleware.Logger.WarnContext(ctx, "Unique view estimate unavailable",
			slog.String("post_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
	if s.flags.Enabled(featureflags.DailyVisits, id.String()) {
		if visits, err := s.views.DailyVisits(ctx, id, days); err == nil {
			stats.DailyVisits = visits
		} else {
			middleware.Logger.WarnContext(ctx, "Daily visits unavailable",
				slog.String("post_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}
