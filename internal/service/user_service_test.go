package service

import (
	"context"
	"strings"
	"testing"

	"lumen/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_EnsureUser(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.users)
	ctx := context.Background()

	t.Run("creates a missing account", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, svc.EnsureUser(ctx, &models.User{ID: id, Username: "ada", Role: models.RoleAuthor}))

		got, err := svc.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "ada", got.Username)
		assert.Equal(t, models.RoleAuthor, got.Role)
	})

	t.Run("leaves an existing account alone", func(t *testing.T) {
		existing := f.user(t, "grace", models.RoleEditor)
		require.NoError(t, svc.EnsureUser(ctx, &models.User{ID: existing.ID, Username: "someone-else", Role: models.RoleReader}))

		got, err := svc.GetUserByID(ctx, existing.ID)
		require.NoError(t, err)
		assert.Equal(t, "grace", got.Username)
		assert.Equal(t, models.RoleEditor, got.Role)
	})

	t.Run("falls back to an id-derived username", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, svc.EnsureUser(ctx, &models.User{ID: id}))

		got, err := svc.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "user-"+id.String()[:8], got.Username)
		assert.Equal(t, models.RoleReader, got.Role)
	})

	t.Run("disambiguates a taken username", func(t *testing.T) {
		f.user(t, "linus", models.RoleReader)
		id := uuid.New()
		require.NoError(t, svc.EnsureUser(ctx, &models.User{ID: id, Username: "linus"}))

		got, err := svc.GetUserByUsername(ctx, "linus-"+id.String()[:8])
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("disambiguated names stay within the column", func(t *testing.T) {
		long := strings.Repeat("n", models.MaxUsernameLength)
		f.user(t, long, models.RoleReader)
		id := uuid.New()
		require.NoError(t, svc.EnsureUser(ctx, &models.User{ID: id, Username: long}))

		got, err := svc.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.Len(t, got.Username, models.MaxUsernameLength)
		assert.True(t, strings.HasSuffix(got.Username, "-"+id.String()[:8]))
	})
}

func TestUserService_ListUsers(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.users)
	ctx := context.Background()

	f.user(t, "carol", models.RoleAuthor)
	f.user(t, "alice", models.RoleReader)
	f.user(t, "bob", models.RoleAuthor)

	page, err := svc.ListUsers(ctx, "", models.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "alice", page.Items[0].Username)

	authors, err := svc.ListUsers(ctx, models.RoleAuthor, models.PageRequest{Page: 1, Size: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, authors.Total)
	require.Len(t, authors.Items, 1)
	assert.Equal(t, "bob", authors.Items[0].Username)

	_, err = svc.ListUsers(ctx, "overlord", models.PageRequest{})
	assertValidationError(t, err)
}
