// Package cli implements the lumen-admin command tree.
package cli

import (
	"context"
	"fmt"

	"lumen/internal/bootstrap"
	"lumen/internal/config"
	"lumen/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// RootOptions holds the hooks shared by every subcommand. Zero values fall
// back to the real configuration and connections.
type RootOptions struct {
	LoadConfig func() (*config.Config, error)
	// OpenDB connects without applying the schema policy and returns a
	// function releasing the connection.
	OpenDB func(ctx context.Context, cfg *config.Config) (*gorm.DB, func() error, error)
	// Runtime builds the full engine for commands that need the index.
	Runtime func(ctx context.Context, cfg *config.Config) (*bootstrap.Runtime, error)
}

func (o *RootOptions) withDefaults() {
	if o.LoadConfig == nil {
		o.LoadConfig = config.LoadConfig
	}
	if o.OpenDB == nil {
		o.OpenDB = func(ctx context.Context, cfg *config.Config) (*gorm.DB, func() error, error) {
			db, err := database.ConnectWithOptions(ctx, cfg, database.ConnectOptions{ApplySchema: false})
			if err != nil {
				return nil, nil, err
			}
			return db, database.Close, nil
		}
	}
	if o.Runtime == nil {
		o.Runtime = func(ctx context.Context, cfg *config.Config) (*bootstrap.Runtime, error) {
			return bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
		}
	}
}

// withDB loads the config, opens the database and runs fn against it.
func (o *RootOptions) withDB(ctx context.Context, fn func(cfg *config.Config, db *gorm.DB) error) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, closeDB, err := o.OpenDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = closeDB() }()
	return fn(cfg, db)
}

// NewRootCommand creates the root command for lumen-admin.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	opts.withDefaults()

	cmd := &cobra.Command{
		Use:           "lumen-admin",
		Short:         "Operational tooling for the Lumen engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewPromoteCommand(opts))

	return cmd
}
