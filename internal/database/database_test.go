package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"lumen/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "db",
		DBPort:     "5432",
		DBUser:     "lumen",
		DBPassword: "secret",
		DBName:     "lumen",
	}
	assert.Equal(t, "host=db port=5432 user=lumen password=secret dbname=lumen sslmode=disable", DSN(cfg))
	assert.Empty(t, ReadDSN(cfg))

	cfg.DBSSLMode = "require"
	cfg.DBReadHost = "replica"
	cfg.DBReadPort = "5433"
	cfg.DBReadUser = "ro"
	cfg.DBReadPassword = "ro-secret"
	assert.Equal(t, "host=replica port=5433 user=ro password=ro-secret dbname=lumen sslmode=require", ReadDSN(cfg))
}

func TestCustomGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)), logger.Warn)
	ctx := context.Background()
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), fc, nil)
	assert.Empty(t, buf.String(), "fast queries are not logged at warn level")

	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "GORM slow query")

	buf.Reset()
	l.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "record not found is not an error")

	l.Trace(ctx, time.Now(), fc, errors.New("boom"))
	assert.Contains(t, buf.String(), "GORM query error")

	buf.Reset()
	silent := l.LogMode(logger.Silent)
	silent.Trace(ctx, time.Now(), fc, errors.New("boom"))
	assert.Empty(t, buf.String())
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_second.up.sql":   {Data: []byte("CREATE TABLE b (id int);")},
		"m/000002_second.down.sql": {Data: []byte("DROP TABLE b;")},
		"m/000001_first.up.sql":    {Data: []byte("CREATE TABLE a (id int);")},
		"m/000001_first.down.sql":  {Data: []byte("DROP TABLE a;")},
		"m/README.md":              {Data: []byte("ignored")},
	}

	got, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "DROP TABLE a;", got[0].DownScript)
	assert.Equal(t, "000002_second", got[1].String())
}

func TestLoadMigrations_MissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000001_first.up.sql": {Data: []byte("CREATE TABLE a (id int);")},
	}
	_, err := LoadMigrations(fsys, "m")
	require.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	all := GetMigrations()
	require.NotEmpty(t, all)
	assert.Equal(t, 1, all[0].Version)
	assert.Contains(t, all[0].UpScript, "idx_likes_post_user")
	assert.Contains(t, all[0].UpScript, "idx_follows_pair")
	assert.NotNil(t, GetMigrationByVersion(1))
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}}
	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))

	err := validateAppliedVersions([]int{1, 7, 5}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000005, 000007")
}

func TestMigrationLedger_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	ctx := context.Background()

	registered := []Migration{
		{Version: 1, Name: "widgets", UpScript: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE widgets"},
		{Version: 2, Name: "gadgets", UpScript: "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE gadgets"},
	}

	require.NoError(t, runMigrations(ctx, db, registered[:1]))
	require.NoError(t, runMigrations(ctx, db, registered), "a second run applies only what is new")
	assert.True(t, db.Migrator().HasTable("widgets"))
	assert.True(t, db.Migrator().HasTable("gadgets"))

	applied, err := ledger{db: db}.versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	t.Run("older build refuses a newer database", func(t *testing.T) {
		err := runMigrations(ctx, db, registered[:1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "000002")
	})

	t.Run("failed script leaves no record", func(t *testing.T) {
		broken := append(append([]Migration(nil), registered...), Migration{Version: 3, Name: "broken", UpScript: "CREATE TABLE nope (", DownScript: ""})
		require.Error(t, runMigrations(ctx, db, broken))
		applied, err := ledger{db: db}.versions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, applied)
	})

	t.Run("rollback", func(t *testing.T) {
		require.NoError(t, rollbackMigration(ctx, db, registered, 2))
		assert.False(t, db.Migrator().HasTable("gadgets"))
		applied, err := ledger{db: db}.versions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, applied)

		assert.ErrorContains(t, rollbackMigration(ctx, db, registered, 2), "has not been applied")
		assert.ErrorContains(t, rollbackMigration(ctx, db, registered, 9), "not found")
	})
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		env      string
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{name: "hybrid dev", mode: "hybrid", env: "development", wantSQL: true, wantAuto: true},
		{name: "hybrid prod", mode: "hybrid", env: "production", wantSQL: true},
		{name: "empty defaults to hybrid", mode: "", env: "staging", wantSQL: true},
		{name: "sql", mode: "SQL", env: "development", wantSQL: true},
		{name: "auto dev", mode: "auto", env: "test", wantAuto: true},
		{name: "auto prod refused", mode: "auto", env: "prod", wantErr: true},
		{name: "unknown", mode: "yolo", env: "development", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planSchema(&config.Config{DBSchemaMode: tt.mode, Env: tt.env})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, plan.runSQL)
			assert.Equal(t, tt.wantAuto, plan.runAuto)
		})
	}
}

func TestGetSchemaStatus_FreshDatabase(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	status, err := GetSchemaStatus(context.Background(), db, &config.Config{DBSchemaMode: "sql", Env: "development"})
	require.NoError(t, err)
	assert.True(t, status.WillRunSQL)
	assert.False(t, status.WillRunAutoMigrate)
	assert.Empty(t, status.AppliedVersions)
	assert.Len(t, status.PendingMigrations, len(GetMigrations()))
}

func TestAutoMigrate_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"users", "posts", "tags", "post_tags", "comments", "likes", "bookmarks", "follows"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("likes", "idx_likes_post_user"))
	assert.True(t, db.Migrator().HasIndex("follows", "idx_follows_pair"))
	assert.False(t, db.Migrator().HasColumn("comments", "reply_count"))
}
