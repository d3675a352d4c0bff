package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/database"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/logging"
)

// NewCreateUserCommand registers a local account in the configured credential store.
func NewCreateUserCommand() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Register a local account",
		Long: `Register a local account in the configured credential store.
The password is read from stdin when --password is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			log := logging.NewWithOutput(cfg.Logging, cmd.ErrOrStderr())

			if password == "" {
				var err error
				if password, err = readPassword(cmd, "Enter password: "); err != nil {
					return err
				}
			}

			db, err := database.NewDatabase(cfg.Database, log)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			repo := users.NewRepository(db.DB, cfg.Database.StoreTimeout)
			user, err := auth.NewService(repo, cfg.Auth).Register(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("failed to create user %q: %w", username, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin if omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
