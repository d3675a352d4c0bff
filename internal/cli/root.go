// Package cli defines the gatekeeper command line: the server and account
// maintenance commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/gatekeeper/internal/config"
)

// loadConfig is replaced in tests.
var loadConfig = config.NewConfig

// NewRootCommand builds the command tree. Running it without a subcommand serves HTTP.
func NewRootCommand(version string) *cobra.Command {
	serve := NewServeCommand(version)

	root := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Credential verification and session identity server",
		Long: `gatekeeper verifies local and federated credentials, binds the resulting
identity to a server-side session and resolves it on every request.

Configuration is read from the environment (see DATABASE_*, AUTH_*, SESSION_*,
REDIS_*, GITHUB_*, OIDC_* and LOG_* variables).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(NewCreateUserCommand())
	root.AddCommand(NewHashPasswordCommand())

	root.SetVersionTemplate(`{{.Version}}
`)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
