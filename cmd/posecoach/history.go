package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/posecoach/internal/history"
)

const defaultHistoryDB = "~/.posecoach/history.db"

func newHistoryCmd(stdout io.Writer, deps appDeps) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished sessions",
		Long: `Print the most recently finished pose-feedback sessions recorded in the
history database, newest first.

Examples:
  posecoach history
  posecoach history --db ./history.db --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = os.Getenv("POSE_COACH_HISTORY_DB")
			}
			if dbPath == "" {
				dbPath = defaultHistoryDB
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be > 0")
			}

			store, err := deps.openHistory(cmd.Context(), dbPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			summaries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printSummaries(stdout, summaries)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to history database (default: $POSE_COACH_HISTORY_DB or "+defaultHistoryDB+")")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "Number of sessions to show")
	return cmd
}

func printSummaries(w io.Writer, summaries []history.Summary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No sessions recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDED\tSESSION\tDURATION\tSAMPLES\tSCORE\tLEVEL\tBEST\tACHIEVEMENTS\tREASON")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f\t%d\t%s\n",
			s.EndedAt.Local().Format("2006-01-02 15:04"),
			s.SessionID,
			s.Duration().Round(time.Second),
			s.Samples,
			s.TotalScore,
			s.Level,
			s.HighestAccuracy,
			len(s.Achievements),
			s.EndReason,
		)
	}
	return tw.Flush()
}
