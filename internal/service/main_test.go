package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/search"
	"lumen/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// assertCode asserts that err is an AppError with the given code.
func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertReason asserts the code and reason of an AppError.
func assertReason(t *testing.T, err error, code, reason string) {
	t.Helper()
	assertCode(t, err, code)
	assert.Equal(t, reason, models.ErrorReason(err))
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}

type recordedEvent struct {
	Kind    search.Kind
	PostID  uuid.UUID
	Version time.Time
	Doc     *search.Document
}

// recordingSink captures index events instead of applying them.
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) EnqueueUpsert(doc search.Document) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := doc
	r.events = append(r.events, recordedEvent{Kind: search.KindUpsert, PostID: doc.ID, Version: doc.Version(), Doc: &d})
	return true
}

func (r *recordingSink) EnqueueRemove(id uuid.UUID, version time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Kind: search.KindRemove, PostID: id, Version: version})
	return true
}

func (r *recordingSink) Events() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

// viewTrackerStub is a stub for ViewTracker.
type viewTrackerStub struct {
	registerViewFn     func(context.Context, uuid.UUID, string) bool
	recordDailyVisitFn func(context.Context, uuid.UUID)
	estimateFn         func(context.Context, uuid.UUID) (int64, error)
	dailyVisitsFn      func(context.Context, uuid.UUID, int) ([]models.DailyVisit, error)
	forgetFn           func(context.Context, uuid.UUID) error
}

func (s *viewTrackerStub) RegisterView(ctx context.Context, postID uuid.UUID, key string) bool {
	return s.registerViewFn(ctx, postID, key)
}
func (s *viewTrackerStub) RecordDailyVisit(ctx context.Context, postID uuid.UUID) {
	s.recordDailyVisitFn(ctx, postID)
}
func (s *viewTrackerStub) EstimateUniqueViews(ctx context.Context, postID uuid.UUID) (int64, error) {
	return s.estimateFn(ctx, postID)
}
func (s *viewTrackerStub) DailyVisits(ctx context.Context, postID uuid.UUID, days int) ([]models.DailyVisit, error) {
	return s.dailyVisitsFn(ctx, postID, days)
}
func (s *viewTrackerStub) Forget(ctx context.Context, postID uuid.UUID) error {
	return s.forgetFn(ctx, postID)
}

func noopViewTracker() *viewTrackerStub {
	return &viewTrackerStub{
		registerViewFn:     func(context.Context, uuid.UUID, string) bool { return false },
		recordDailyVisitFn: func(context.Context, uuid.UUID) {},
		estimateFn:         func(context.Context, uuid.UUID) (int64, error) { return 0, nil },
		dailyVisitsFn:      func(context.Context, uuid.UUID, int) ([]models.DailyVisit, error) { return nil, nil },
		forgetFn:           func(context.Context, uuid.UUID) error { return nil },
	}
}

// fixture wires repositories over a private SQLite database.
type fixture struct {
	db        *gorm.DB
	clock     *testutil.Clock
	users     repository.UserRepository
	posts     repository.PostRepository
	comments  repository.CommentRepository
	likes     repository.LikeRepository
	bookmarks repository.BookmarkRepository
	follows   repository.FollowRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	return &fixture{
		db:        db,
		clock:     testutil.NewClock(epoch, time.Second),
		users:     repository.NewUserRepository(db),
		posts:     repository.NewPostRepository(db),
		comments:  repository.NewCommentRepository(db),
		likes:     repository.NewLikeRepository(db),
		bookmarks: repository.NewBookmarkRepository(db),
		follows:   repository.NewFollowRepository(db),
	}
}

func (f *fixture) user(t *testing.T, name string, role models.Role) *models.User {
	return testutil.CreateUser(t, f.db, name, role)
}

func (f *fixture) post(t *testing.T, author *models.User, status models.PostStatus) *models.Post {
	return testutil.CreatePost(t, f.db, author, status, epoch.Add(-time.Hour))
}

func actorOf(u *models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role}
}

// gatedPosts holds the first Update until release is closed, so a second
// writer can commit while the first sits between its read and its write.
type gatedPosts struct {
	repository.PostRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedPosts(inner repository.PostRepository) *gatedPosts {
	return &gatedPosts{PostRepository: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedPosts) Update(ctx context.Context, post *models.Post, expected time.Time) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.PostRepository.Update(ctx, post, expected)
}

// contendedPosts loses every conditional write.
type contendedPosts struct {
	repository.PostRepository
	mu       sync.Mutex
	attempts int
}

func (c *contendedPosts) Update(context.Context, *models.Post, time.Time) error {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
	return models.NewConflictError(models.ReasonStaleWrite, "Post was modified concurrently")
}
