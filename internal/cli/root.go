// Package cli implements the casenotes command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/casenotes/internal/config"
	"github.com/example/casenotes/internal/logging"
	"github.com/example/casenotes/internal/wire"
)

// RootCmd returns the casenotes command tree.
func RootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "casenotes",
		Short:   "Case notes sync, migration and audited-mutation service",
		Version: version,
		Long: `casenotes keeps the canonical case note store in step with the legacy
system, the alerts service and person merges.

Run 'casenotes serve' to start the HTTP API and the event dispatcher.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML config file")

	cmd.AddCommand(ServeCmd())
	cmd.AddCommand(ReconcileCmd())
	cmd.AddCommand(MigrateDBCmd())
	cmd.AddCommand(SeedCmd())
	cmd.AddCommand(NoteCmd())

	return cmd
}

// loadConfig reads and validates the config named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildApp wires the application for one command. Logs go to stderr so
// command output on stdout stays clean.
func buildApp(cmd *cobra.Command) (*wire.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return wire.Build(cmd.Context(), cfg, logger)
}
