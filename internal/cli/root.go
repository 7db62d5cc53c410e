// Package cli provides the command-line interface for sitegraft.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/avollmer/sitegraft/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// REST client for the sitegraft server
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sitegraft",
	Short: "Migrate a website into a target CMS",
	Long: `Sitegraft rebuilds an existing website inside a target CMS: it scrapes
the source, maps every element to a CMS component, builds and themes the
pages, and iteratively refines the result toward the original's look.

Jobs run on the sitegraft server; interrupted migrations resume from
their last completed phase.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		api = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "sitegraft server URL (default $SITEGRAFT_SERVER_URL)")
}
