package cli

import (
	"fmt"
	"strings"

	"lumen/internal/config"
	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// NewPromoteCommand creates the promote command, which sets a user's role.
func NewPromoteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <username> <role>",
		Short: "Set a user's role (admin, editor, author, subscriber, reader)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := models.Role(strings.ToLower(strings.TrimSpace(args[1])))
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", args[1])
			}
			return opts.withDB(cmd.Context(), func(_ *config.Config, db *gorm.DB) error {
				users := service.NewUserService(repository.NewUserRepository(db))
				user, err := users.SetRole(cmd.Context(), args[0], role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Username, user.Role)
				return nil
			})
		},
	}
}
