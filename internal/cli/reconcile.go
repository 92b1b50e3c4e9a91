package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ReconcileCmd returns the reconcile command.
func ReconcileCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "reconcile [person]",
		Short: "Create the alert case notes missing for a person",
		Long: `Compare the person's alert transitions in [from, to) with their alert
case notes and create the missing ones. Safe to re-run.

Examples:
  casenotes reconcile A1234AA --from 2024-05-01 --to 2024-06-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return fmt.Errorf("invalid --from %q: want YYYY-MM-DD", from)
			}
			toDate, err := time.Parse(time.DateOnly, to)
			if err != nil {
				return fmt.Errorf("invalid --to %q: want YYYY-MM-DD", to)
			}

			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Services.Reconciliation.Reconcile(cmd.Context(), args[0], fromDate, toDate)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reconciled %s from %s to %s\n", summary.PersonIdentifier, from, to)
			fmt.Fprintf(out, "  Made active:   %d missing, %s\n", summary.ActiveMissing, createdLabel(summary.ActiveCreated))
			fmt.Fprintf(out, "  Made inactive: %d missing, %s\n", summary.InactiveMissing, createdLabel(summary.InactiveCreated))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date, exclusive (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func createdLabel(n int) string {
	if n == 0 {
		return color.New(color.FgGreen).Sprint("up to date")
	}
	return color.New(color.FgYellow).Sprintf("%d created", n)
}
