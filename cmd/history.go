package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

func historyCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer logging.Close()
			defer store.Close()

			runs, err := store.RecentSyncRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printHistory(w io.Writer, runs []models.SyncRun, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no sync runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tSTAGE\tSTARTED\tDURATION\tALERTS\tRESERVES\tERRORS")
	for _, r := range runs {
		duration := "-"
		if r.DurationMS != nil {
			duration = (time.Duration(*r.DurationMS) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID,
			r.RunType,
			statusText(r.Status),
			r.Stage,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			duration,
			humanize.Comma(int64(r.AlertsProcessed)),
			humanize.Comma(int64(r.ReservesProcessed)),
			r.ErrorCount,
		)
	}
	_ = tw.Flush()
}
