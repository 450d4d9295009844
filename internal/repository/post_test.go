package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"lumen/internal/models"
	"lumen/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_IncrementViewCount_SQLShape(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "view_count"=view_count + $1 WHERE id = $2`)).
		WithArgs(1, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IncrementViewCount(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_Integration(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author", models.RoleAuthor)
	reader := testutil.CreateUser(t, db, "reader", models.RoleReader)

	tags, err := repo.ResolveTags(ctx, []string{"Go", " go ", "Distributed Systems", ""})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "distributed-systems", tags[0].Slug)
	assert.Equal(t, "go", tags[1].Slug)

	published := epoch.Add(time.Hour)
	post := &models.Post{
		Title:       "Consistency at scale",
		Slug:        "consistency-at-scale",
		Body:        "body",
		ReadTime:    1,
		Status:      models.PostStatusPublished,
		AuthorID:    author.ID,
		Tags:        tags,
		PublishedAt: &published,
		CreatedAt:   epoch,
		UpdatedAt:   published,
	}
	require.NoError(t, repo.Create(ctx, post))
	draft := testutil.CreatePost(t, db, author, models.PostStatusDraft, epoch)

	t.Run("GetBySlug loads author and tags", func(t *testing.T) {
		got, err := repo.GetBySlug(ctx, "consistency-at-scale")
		require.NoError(t, err)
		require.NotNil(t, got.Author)
		assert.Equal(t, "author", got.Author.Username)
		assert.ElementsMatch(t, []string{"Go", "Distributed Systems"}, got.TagNames())

		_, err = repo.GetBySlug(ctx, "missing")
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("Duplicate slug conflicts", func(t *testing.T) {
		dup := &models.Post{Title: "x", Slug: post.Slug, Body: "b", Status: models.PostStatusDraft, AuthorID: author.ID, CreatedAt: epoch, UpdatedAt: epoch}
		assert.Equal(t, models.CodeConflict, models.ErrorCode(repo.Create(ctx, dup)))
	})

	t.Run("SlugExists", func(t *testing.T) {
		ok, err := repo.SlugExists(ctx, post.Slug, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SlugExists(ctx, post.Slug, post.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("List filters", func(t *testing.T) {
		items, total, err := repo.List(ctx, PostFilter{Status: models.PostStatusPublished}, models.PageRequest{Page: 1, Size: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, post.ID, items[0].ID)

		items, total, err = repo.List(ctx, PostFilter{TagSlug: "go"}, models.PageRequest{Page: 1, Size: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Len(t, items, 1)

		_, total, err = repo.List(ctx, PostFilter{AuthorID: &author.ID}, models.PageRequest{Page: 1, Size: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)

		featured := true
		_, total, err = repo.List(ctx, PostFilter{Featured: &featured}, models.PageRequest{Page: 1, Size: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("Update replaces tags", func(t *testing.T) {
		newTags, err := repo.ResolveTags(ctx, []string{"Databases"})
		require.NoError(t, err)

		read := post.UpdatedAt
		post.Title = "Consistency, revisited"
		post.Tags = newTags
		post.UpdatedAt = epoch.Add(2 * time.Hour)
		require.NoError(t, repo.Update(ctx, post, read))

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "Consistency, revisited", got.Title)
		assert.Equal(t, []string{"Databases"}, got.TagNames())
		assert.True(t, got.UpdatedAt.Equal(epoch.Add(2*time.Hour)))

		missing := &models.Post{ID: uuid.New(), Title: "x", Slug: "x", Status: models.PostStatusDraft}
		assert.True(t, models.IsNotFound(repo.Update(ctx, missing, epoch)))
	})

	t.Run("Update refuses a write based on an old read", func(t *testing.T) {
		lost := *post
		lost.Title = "Lost update"
		lost.Tags = nil
		lost.UpdatedAt = epoch.Add(3 * time.Hour)
		err := repo.Update(ctx, &lost, epoch.Add(time.Hour))
		assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
		assert.Equal(t, models.ReasonStaleWrite, models.ErrorReason(err))

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "Consistency, revisited", got.Title)
		assert.Equal(t, []string{"Databases"}, got.TagNames())

		err = repo.Delete(ctx, post.ID, epoch.Add(time.Hour))
		assert.Equal(t, models.ReasonStaleWrite, models.ErrorReason(err))
	})

	t.Run("IncrementViewCount", func(t *testing.T) {
		require.NoError(t, repo.IncrementViewCount(ctx, post.ID))
		require.NoError(t, repo.IncrementViewCount(ctx, post.ID))
		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.ViewCount)
		assert.True(t, models.IsNotFound(repo.IncrementViewCount(ctx, uuid.New())))
	})

	t.Run("GetByIDs", func(t *testing.T) {
		got, err := repo.GetByIDs(ctx, []uuid.UUID{post.ID, draft.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("ForEachUpdatedSince", func(t *testing.T) {
		var seen []uuid.UUID
		err := repo.ForEachUpdatedSince(ctx, epoch.Add(time.Minute), 1, func(batch []*models.Post) error {
			for _, p := range batch {
				seen = append(seen, p.ID)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{post.ID}, seen)
	})

	t.Run("Delete cascades", func(t *testing.T) {
		require.NoError(t, db.Create(&models.Comment{PostID: post.ID, AuthorID: reader.ID, Content: "hi", CreatedAt: epoch, UpdatedAt: epoch}).Error)
		require.NoError(t, db.Create(&models.Like{PostID: post.ID, UserID: reader.ID, ClapCount: 3}).Error)
		require.NoError(t, db.Create(&models.Bookmark{PostID: post.ID, UserID: reader.ID, CreatedAt: epoch}).Error)

		require.NoError(t, repo.Delete(ctx, post.ID, post.UpdatedAt))

		for _, model := range []interface{}{&models.Comment{}, &models.Like{}, &models.Bookmark{}} {
			var n int64
			require.NoError(t, db.Model(model).Where("post_id = ?", post.ID).Count(&n).Error)
			assert.Zero(t, n)
		}
		var links int64
		require.NoError(t, db.Table("post_tags").Where("post_id = ?", post.ID).Count(&links).Error)
		assert.Zero(t, links)

		assert.True(t, models.IsNotFound(repo.Delete(ctx, post.ID, post.UpdatedAt)))
	})
}
