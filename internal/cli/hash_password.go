package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/gatekeeper/internal/auth"
)

// NewHashPasswordCommand prints a bcrypt hash for a password read from stdin.
func NewHashPasswordCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Generate bcrypt hash for a password",
		Long:  `Generate a bcrypt hash for a password, at AUTH_BCRYPT_COST unless --cost is given.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cost == 0 {
				cost = loadConfig().Auth.BcryptCost
			}

			password, err := readPassword(cmd, "Enter password: ")
			if err != nil {
				return err
			}

			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default AUTH_BCRYPT_COST)")
	return cmd
}
