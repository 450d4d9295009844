package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"lumen/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn        func(context.Context, *models.Comment) error
	getByIDFn       func(context.Context, uuid.UUID) (*models.Comment, error)
	updateContentFn func(context.Context, uuid.UUID, uuid.UUID, string, time.Time) (*models.Comment, error)
	markDeletedFn   func(context.Context, uuid.UUID, time.Time) (bool, error)
	listTopLevelFn  func(context.Context, uuid.UUID, models.PageRequest) ([]*models.Comment, int64, error)
	listRepliesFn   func(context.Context, uuid.UUID, models.PageRequest) ([]*models.Comment, int64, error)
}

func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) UpdateContent(ctx context.Context, id, authorID uuid.UUID, content string, at time.Time) (*models.Comment, error) {
	return s.updateContentFn(ctx, id, authorID, content, at)
}
func (s *commentRepoStub) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.markDeletedFn(ctx, id, at)
}
func (s *commentRepoStub) ListTopLevel(ctx context.Context, postID uuid.UUID, page models.PageRequest) ([]*models.Comment, int64, error) {
	return s.listTopLevelFn(ctx, postID, page)
}
func (s *commentRepoStub) ListReplies(ctx context.Context, parentID uuid.UUID, page models.PageRequest) ([]*models.Comment, int64, error) {
	return s.listRepliesFn(ctx, parentID, page)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn:  func(context.Context, *models.Comment) error { return nil },
		getByIDFn: func(_ context.Context, id uuid.UUID) (*models.Comment, error) { return &models.Comment{ID: id}, nil },
		updateContentFn: func(context.Context, uuid.UUID, uuid.UUID, string, time.Time) (*models.Comment, error) {
			return &models.Comment{}, nil
		},
		markDeletedFn: func(context.Context, uuid.UUID, time.Time) (bool, error) { return true, nil },
		listTopLevelFn: func(context.Context, uuid.UUID, models.PageRequest) ([]*models.Comment, int64, error) {
			return nil, 0, nil
		},
		listRepliesFn: func(context.Context, uuid.UUID, models.PageRequest) ([]*models.Comment, int64, error) {
			return nil, 0, nil
		},
	}
}

func TestCommentService_AddComment_Validation(t *testing.T) {
	t.Parallel()

	created := false
	repo := noopCommentRepo()
	repo.createFn = func(context.Context, *models.Comment) error {
		created = true
		return nil
	}
	svc := NewCommentService(repo, nil, nil)
	ctx := context.Background()
	defer func() { assert.False(t, created) }()

	t.Run("empty content", func(t *testing.T) {
		_, err := svc.AddComment(ctx, CreateCommentInput{PostID: uuid.New(), Content: "   "})
		assertValidationError(t, err)
	})

	t.Run("content too long", func(t *testing.T) {
		_, err := svc.AddComment(ctx, CreateCommentInput{
			PostID:  uuid.New(),
			Content: strings.Repeat("x", models.MaxCommentLength+1),
		})
		assertValidationError(t, err)
	})
}

func TestCommentService_AddComment_StampsTimes(t *testing.T) {
	t.Parallel()

	var created *models.Comment
	repo := noopCommentRepo()
	repo.createFn = func(_ context.Context, c *models.Comment) error {
		c.ID = uuid.New()
		created = c
		return nil
	}
	repo.getByIDFn = func(context.Context, uuid.UUID) (*models.Comment, error) { return created, nil }

	at := time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.FixedZone("X", 3600))
	svc := NewCommentService(repo, nil, func() time.Time { return at })
	author := uuid.New()
	c, err := svc.AddComment(context.Background(), CreateCommentInput{
		Actor:   models.Actor{UserID: author, Role: models.RoleReader},
		PostID:  uuid.New(),
		Content: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, author, c.AuthorID)
	assert.Equal(t, time.UTC, c.CreatedAt.Location())
	assert.Equal(t, 123456000, c.CreatedAt.Nanosecond())
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
}

func TestCommentService_DeleteComment_Authorization(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	repo := noopCommentRepo()
	repo.getByIDFn = func(_ context.Context, id uuid.UUID) (*models.Comment, error) {
		return &models.Comment{ID: id, AuthorID: owner}, nil
	}
	marked := 0
	repo.markDeletedFn = func(context.Context, uuid.UUID, time.Time) (bool, error) {
		marked++
		return true, nil
	}
	svc := NewCommentService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.DeleteComment(ctx, DeleteCommentInput{
		Actor:     models.Actor{UserID: uuid.New(), Role: models.RoleAuthor},
		CommentID: uuid.New(),
	})
	assertCode(t, err, models.CodeForbidden)
	assert.Zero(t, marked)

	for _, role := range []models.Role{models.RoleAdmin, models.RoleEditor} {
		_, err := svc.DeleteComment(ctx, DeleteCommentInput{
			Actor:     models.Actor{UserID: uuid.New(), Role: role},
			CommentID: uuid.New(),
		})
		require.NoError(t, err, role)
	}
	assert.Equal(t, 2, marked)
}

func TestCommentService_Tree(t *testing.T) {
	f := newFixture(t)
	svc := NewCommentService(f.comments, f.posts, f.clock.Now)
	ctx := context.Background()

	author := f.user(t, "writer", models.RoleAuthor)
	alice := f.user(t, "alice", models.RoleReader)
	bob := f.user(t, "bob", models.RoleReader)
	editor := f.user(t, "editor", models.RoleEditor)
	post := f.post(t, author, models.PostStatusPublished)
	other := f.post(t, author, models.PostStatusPublished)

	c1, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(alice), PostID: post.ID, Content: "first"})
	require.NoError(t, err)
	require.NotNil(t, c1.Author)
	assert.Equal(t, "alice", c1.Author.Username)

	c2, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(bob), PostID: post.ID, ParentID: &c1.ID, Content: "reply"})
	require.NoError(t, err)
	c3, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(alice), PostID: post.ID, ParentID: &c2.ID, Content: "nested"})
	require.NoError(t, err)

	t.Run("missing post", func(t *testing.T) {
		_, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(bob), PostID: uuid.New(), Content: "x"})
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("missing parent", func(t *testing.T) {
		missing := uuid.New()
		_, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(bob), PostID: post.ID, ParentID: &missing, Content: "x"})
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("parent on another post", func(t *testing.T) {
		_, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(bob), PostID: other.ID, ParentID: &c1.ID, Content: "x"})
		assertReason(t, err, models.CodeValidation, models.ReasonInvalidParent)
	})

	t.Run("only the author edits", func(t *testing.T) {
		_, err := svc.EditComment(ctx, UpdateCommentInput{Actor: actorOf(bob), CommentID: c1.ID, Content: "hijack"})
		assertCode(t, err, models.CodeForbidden)

		edited, err := svc.EditComment(ctx, UpdateCommentInput{Actor: actorOf(alice), CommentID: c1.ID, Content: "first, edited"})
		require.NoError(t, err)
		assert.Equal(t, "first, edited", edited.Content)
	})

	t.Run("stranger cannot delete", func(t *testing.T) {
		_, err := svc.DeleteComment(ctx, DeleteCommentInput{Actor: actorOf(bob), CommentID: c1.ID})
		assertCode(t, err, models.CodeForbidden)
	})

	var deletedAt time.Time
	t.Run("soft delete keeps replies attached", func(t *testing.T) {
		deleted, err := svc.DeleteComment(ctx, DeleteCommentInput{Actor: actorOf(alice), CommentID: c1.ID})
		require.NoError(t, err)
		assert.True(t, deleted.IsDeleted)
		assert.Equal(t, models.CommentDeleted, deleted.State())
		assert.Equal(t, models.CommentTombstone, deleted.Content)
		require.NotNil(t, deleted.DeletedAt)
		deletedAt = *deleted.DeletedAt

		replies, err := svc.ListReplies(ctx, c1.ID, models.PageRequest{}, nil)
		require.NoError(t, err)
		require.Len(t, replies.Items, 1)
		assert.Equal(t, c2.ID, replies.Items[0].ID)
		require.NotNil(t, replies.Items[0].ParentID)
		assert.Equal(t, c1.ID, *replies.Items[0].ParentID)
	})

	t.Run("second delete is a no-op", func(t *testing.T) {
		again, err := svc.DeleteComment(ctx, DeleteCommentInput{Actor: actorOf(editor), CommentID: c1.ID})
		require.NoError(t, err)
		require.NotNil(t, again.DeletedAt)
		assert.True(t, deletedAt.Equal(*again.DeletedAt))
	})

	t.Run("deleted comment cannot be edited", func(t *testing.T) {
		_, err := svc.EditComment(ctx, UpdateCommentInput{Actor: actorOf(alice), CommentID: c1.ID, Content: "back"})
		assertReason(t, err, models.CodeInvalidState, models.ReasonCommentDeleted)
	})

	t.Run("replies to a deleted comment are allowed", func(t *testing.T) {
		_, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(bob), PostID: post.ID, ParentID: &c1.ID, Content: "late"})
		require.NoError(t, err)
	})

	t.Run("top level listing", func(t *testing.T) {
		second, err := svc.AddComment(ctx, CreateCommentInput{Actor: actorOf(bob), PostID: post.ID, Content: "second"})
		require.NoError(t, err)

		page, err := svc.ListComments(ctx, post.ID, models.PageRequest{Page: 1, Size: 10}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, second.ID, page.Items[0].ID)
		assert.Equal(t, c1.ID, page.Items[1].ID)
		assert.Equal(t, int64(2), page.Items[1].ReplyCount)
		assert.Equal(t, models.CommentTombstone, page.Items[1].Content)
	})

	t.Run("deep replies stay oldest first", func(t *testing.T) {
		page, err := svc.ListReplies(ctx, c2.ID, models.PageRequest{}, nil)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, c3.ID, page.Items[0].ID)
	})

	t.Run("listing a missing post", func(t *testing.T) {
		_, err := svc.ListComments(ctx, uuid.New(), models.PageRequest{}, nil)
		assertCode(t, err, models.CodeNotFound)
	})
}

func TestCommentService_UnpublishedPostThreadsAreHidden(t *testing.T) {
	f := newFixture(t)
	svc := NewCommentService(f.comments, f.posts, f.clock.Now)
	ctx := context.Background()

	author := f.user(t, "writer", models.RoleAuthor)
	reader := f.user(t, "reader", models.RoleReader)
	editor := f.user(t, "editor", models.RoleEditor)
	draft := f.post(t, author, models.PostStatusDraft)

	top := &models.Comment{PostID: draft.ID, AuthorID: author.ID, Content: "note to self", CreatedAt: epoch, UpdatedAt: epoch}
	require.NoError(t, f.comments.Create(ctx, top))
	reply := &models.Comment{PostID: draft.ID, ParentID: &top.ID, AuthorID: author.ID, Content: "and another", CreatedAt: epoch, UpdatedAt: epoch}
	require.NoError(t, f.comments.Create(ctx, reply))

	stranger := actorOf(reader)
	for _, viewer := range []*models.Actor{nil, &stranger} {
		_, err := svc.ListComments(ctx, draft.ID, models.PageRequest{}, viewer)
		assertCode(t, err, models.CodeNotFound)
		_, err = svc.ListReplies(ctx, top.ID, models.PageRequest{}, viewer)
		assertCode(t, err, models.CodeNotFound)
	}

	owner, moderator := actorOf(author), actorOf(editor)
	for _, viewer := range []*models.Actor{&owner, &moderator} {
		page, err := svc.ListComments(ctx, draft.ID, models.PageRequest{}, viewer)
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.Total)

		replies, err := svc.ListReplies(ctx, top.ID, models.PageRequest{}, viewer)
		require.NoError(t, err)
		require.Len(t, replies.Items, 1)
		assert.Equal(t, reply.ID, replies.Items[0].ID)
	}
}
