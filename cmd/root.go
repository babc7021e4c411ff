package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailroute application
var rootCmd = &cobra.Command{
	Use:   "mailroute",
	Short: "Imports mail attachments and routes them into case folders",
	Long: `mailroute pulls attachments from a Gmail mailbox into an inbox folder and
routes every inbox item into a case folder chosen by ordered keyword rules.

It can run as:
  - A batch CLI tool (import, route, run)
  - A long-running watcher that routes whenever the inbox changes
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailroute version %s\n" .Version}}`)

	// If no subcommand is provided, run the full pipeline by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globals.configPath, "config", "", "Path to the YAML configuration (default: $MAILROUTE_CONFIG or ./mailroute.yaml)")
	rootCmd.PersistentFlags().StringVar(&globals.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the configuration)")
	rootCmd.PersistentFlags().StringVar(&globals.logFormat, "log-format", "", "Log format: text or json (overrides the configuration)")

	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newRouteCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
