package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/casenotes/internal/ports/primary"
)

// NoteCmd returns the note command group.
func NoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Inspect case notes",
		Long:  "Show a stored case note or the archived snapshots taken before it was changed.",
	}

	cmd.AddCommand(noteShowCmd())
	cmd.AddCommand(noteHistoryCmd())

	return cmd
}

func noteShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [note-id]",
		Short: "Show a case note and its amendments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			note, err := a.Services.Query.GetCaseNote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printNote(cmd.OutOrStdout(), note)
			return nil
		},
	}
}

func noteHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [note-id]",
		Short: "List archived snapshots of a case note, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.Services.Query.ListDeleted(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), deleted)
			return nil
		},
	}
}

func printNote(out io.Writer, note *primary.CaseNote) {
	fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint(note.ID), originLabel(note.Origin))
	fmt.Fprintf(out, "  Person:    %s\n", note.PersonIdentifier)
	fmt.Fprintf(out, "  Category:  %s/%s\n", note.Type, note.SubType)
	if note.LegacyID != 0 {
		fmt.Fprintf(out, "  Legacy ID: %d\n", note.LegacyID)
	}
	fmt.Fprintf(out, "  Occurred:  %s\n", note.OccurredAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Author:    %s (%s)\n", note.Author.DisplayName, note.Author.Username)
	if note.LocationCode != "" {
		fmt.Fprintf(out, "  Location:  %s\n", note.LocationCode)
	}
	if note.LastModifiedAt != nil {
		fmt.Fprintf(out, "  Modified:  %s by %s\n", note.LastModifiedAt.Format(time.RFC3339), note.LastModifiedBy)
	}
	fmt.Fprintf(out, "\n%s\n", note.Text)

	for _, am := range note.Amendments {
		fmt.Fprintf(out, "\n  %s %s, %s\n    %s\n",
			color.New(color.FgCyan).Sprint("↳"),
			am.Author.DisplayName,
			am.CreatedAt.Format(time.RFC3339),
			am.Text,
		)
	}
}

func printHistory(out io.Writer, deleted []*primary.DeletedCaseNote) {
	if len(deleted) == 0 {
		fmt.Fprintln(out, "No archived snapshots.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVED AT\tCAUSE\tBY\tPERSON\tCATEGORY\tREASON")
	fmt.Fprintln(w, "-----------\t-----\t--\t------\t--------\t------")
	for _, d := range deleted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s/%s\t%s\n",
			d.DeletedAt.Format(time.RFC3339),
			d.Cause,
			d.DeletedBy,
			d.Snapshot.PersonIdentifier,
			d.Snapshot.Type, d.Snapshot.SubType,
			d.Reason,
		)
	}
	w.Flush()
}

func originLabel(origin string) string {
	if origin == "LEGACY" {
		return color.New(color.FgYellow).Sprint("[legacy]")
	}
	return color.New(color.FgBlue).Sprint("[dps]")
}
