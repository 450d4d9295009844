// Package service holds the engine's operations. Every mutation commits to
// the primary store first; index and analytics side effects run afterwards
// and never fail the caller.
package service

import (
	"context"
	"time"

	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/search"

	"github.com/google/uuid"
)

// IndexSink receives index events after commit. Implementations must not block.
type IndexSink interface {
	EnqueueUpsert(doc search.Document) bool
	EnqueueRemove(id uuid.UUID, version time.Time) bool
}

// ViewTracker is the unique-view and daily-visit store.
type ViewTracker interface {
	RegisterView(ctx context.Context, postID uuid.UUID, viewerKey string) bool
	RecordDailyVisit(ctx context.Context, postID uuid.UUID)
	EstimateUniqueViews(ctx context.Context, postID uuid.UUID) (int64, error)
	DailyVisits(ctx context.Context, postID uuid.UUID, days int) ([]models.DailyVisit, error)
	Forget(ctx context.Context, postID uuid.UUID) error
}

// clock returns now truncated to the microsecond in UTC, the precision the
// primary store and the index agree on.
func clock(now func() time.Time) func() time.Time {
	if now == nil {
		now = time.Now
	}
	return func() time.Time {
		return now().UTC().Truncate(time.Microsecond)
	}
}

// after returns t, or the smallest representable instant after prev when t
// does not move forward.
func after(t, prev time.Time) time.Time {
	if t.After(prev) {
		return t
	}
	return prev.Add(time.Microsecond)
}

func canModerate(actor models.Actor, ownerID uuid.UUID) bool {
	return actor.UserID == ownerID || actor.Role.Elevated()
}

// visiblePost loads a post for viewer. Unpublished posts read as missing
// unless viewer is their author or elevated.
func visiblePost(ctx context.Context, posts repository.PostRepository, id uuid.UUID, viewer *models.Actor) (*models.Post, error) {
	post, err := posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.Published() && (viewer == nil || !canModerate(*viewer, post.AuthorID)) {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}
