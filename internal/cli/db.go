package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/casenotes/internal/db"
)

// MigrateDBCmd returns the migrate-db command.
func MigrateDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-db",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Open applies every pending migration.
			database, err := db.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			version, err := db.CurrentVersion(cmd.Context(), database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s at schema version %d\n",
				color.New(color.FgGreen).Sprint("✓"), cfg.Database.Path, version)
			return nil
		},
	}
}

// SeedCmd returns the seed command.
func SeedCmd() *cobra.Command {
	var fixtures bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load category reference data",
		Long: `Load the note type and sub-type registry. Existing rows are left as they are.

Examples:
  casenotes seed
  casenotes seed --fixtures    # also load development case notes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			database, err := db.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.SeedCategories(cmd.Context(), database); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s categories seeded\n", color.New(color.FgGreen).Sprint("✓"))

			if fixtures {
				if err := db.SeedFixtures(cmd.Context(), database); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s fixtures seeded\n", color.New(color.FgGreen).Sprint("✓"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fixtures, "fixtures", false, "Also load development fixtures")

	return cmd
}
