package cli

import (
	"fmt"

	"lumen/internal/config"
	"lumen/internal/seed"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// NewSeedCommand creates the seed command. Refused in production.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	seedOpts := seed.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with generated demo content",
		Long: "Generates users, posts, comments and interactions through the engine's services.\n" +
			"Seeded posts are not indexed; run `lumen-admin reindex` afterwards.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withDB(cmd.Context(), func(cfg *config.Config, db *gorm.DB) error {
				if cfg.IsProduction() {
					return fmt.Errorf("refusing to seed a production database")
				}
				sum, err := seed.New(db, seedOpts).Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"seeded users=%d posts=%d published=%d comments=%d claps=%d follows=%d bookmarks=%d\n",
					sum.Users, sum.Posts, sum.Published, sum.Comments, sum.Claps, sum.Follows, sum.Bookmarks)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&seedOpts.Users, "users", seedOpts.Users, "number of users")
	f.IntVar(&seedOpts.Posts, "posts", seedOpts.Posts, "number of posts")
	f.IntVar(&seedOpts.MaxCommentsPerPost, "comments", seedOpts.MaxCommentsPerPost, "maximum comments per published post")
	f.IntVar(&seedOpts.Days, "days", seedOpts.Days, "days of history to spread content over")
	f.BoolVar(&seedOpts.Clean, "clean", seedOpts.Clean, "delete existing engine rows first")
	f.Int64Var(&seedOpts.Seed, "seed", 0, "random seed (0 picks one)")

	return cmd
}
