package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"lumen/internal/middleware"

	"gorm.io/gorm"
)

// appliedMigration is one row of the migration ledger.
type appliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null;index"`
}

func (appliedMigration) TableName() string {
	return "migration_logs"
}

// ledger records which numbered migrations have run. Each script and its
// ledger row commit in one transaction, so a failed script leaves no record.
type ledger struct {
	db *gorm.DB
}

func (l ledger) ensure(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}
	return nil
}

// versions lists applied versions in ascending order. A database without a
// ledger has applied nothing.
func (l ledger) versions(ctx context.Context) ([]int, error) {
	db := l.db.WithContext(ctx)
	if !db.Migrator().HasTable(&appliedMigration{}) {
		return []int{}, nil
	}
	var versions []int
	if err := db.Model(&appliedMigration{}).Order("version ASC").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	return versions, nil
}

func (l ledger) apply(ctx context.Context, m Migration) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("apply %s: %w", m.String(), err)
		}
		row := appliedMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UTC()}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("record %s: %w", m.String(), err)
		}
		return nil
	})
}

func (l ledger) revert(ctx context.Context, m Migration) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("revert %s: %w", m.String(), err)
		}
		if err := tx.Where("version = ?", m.Version).Delete(&appliedMigration{}).Error; err != nil {
			return fmt.Errorf("unrecord %s: %w", m.String(), err)
		}
		return nil
	})
}

// RunMigrations applies every embedded migration the database has not seen.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return runMigrations(ctx, db, migrations)
}

func runMigrations(ctx context.Context, db *gorm.DB, registered []Migration) error {
	l := ledger{db: db}
	if err := l.ensure(ctx); err != nil {
		return err
	}
	applied, err := l.versions(ctx)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, registered); err != nil {
		return err
	}

	for _, m := range pendingMigrations(applied, registered) {
		if err := l.apply(ctx, m); err != nil {
			return err
		}
		middleware.Logger.InfoContext(ctx, "Migration applied",
			slog.Int("version", m.Version),
			slog.String("name", m.Name),
		)
	}
	return nil
}

func pendingMigrations(applied []int, registered []Migration) []Migration {
	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	var pending []Migration
	for _, m := range registered {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}

// validateAppliedVersions fails when the ledger names versions this build
// does not ship, which means the database was migrated by a newer release.
func validateAppliedVersions(applied []int, registered []Migration) error {
	var unknown []string
	sorted := append([]int(nil), applied...)
	sort.Ints(sorted)
	for _, version := range sorted {
		if migrationByVersion(registered, version) == nil {
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("database has migrations this build does not know: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func migrationByVersion(registered []Migration, version int) *Migration {
	for i := range registered {
		if registered[i].Version == version {
			return &registered[i]
		}
	}
	return nil
}

// RollbackMigration reverts one applied migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return rollbackMigration(ctx, db, migrations, version)
}

func rollbackMigration(ctx context.Context, db *gorm.DB, registered []Migration, version int) error {
	m := migrationByVersion(registered, version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	l := ledger{db: db}
	applied, err := l.versions(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	if err := l.revert(ctx, *m); err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "Migration rolled back",
		slog.Int("version", m.Version),
		slog.String("name", m.Name),
	)
	return nil
}
