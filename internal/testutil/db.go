package testutil

import (
	"fmt"
	"testing"
	"time"

	"lumen/internal/database"
	"lumen/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with every persistent
// model migrated. The pool is pinned to one connection so the in-memory
// database lives as long as the test and concurrent callers are serialized.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given role.
func CreateUser(t testing.TB, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		FullName: "Test " + username,
		Role:     role,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePost inserts a post owned by author with the given status and timestamp.
func CreatePost(t testing.TB, db *gorm.DB, author *models.User, status models.PostStatus, at time.Time) *models.Post {
	t.Helper()
	id := uuid.New()
	p := &models.Post{
		ID:        id,
		Title:     "Post " + id.String()[:8],
		Slug:      fmt.Sprintf("post-%s", id.String()[:8]),
		Subtitle:  "A subtitle",
		Body:      "Some **markdown** body",
		ReadTime:  1,
		Status:    status,
		AuthorID:  author.ID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if status == models.PostStatusPublished {
		p.PublishedAt = &at
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
