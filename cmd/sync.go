package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

func syncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync in the foreground and print its counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer logging.Close()
			defer store.Close()

			a, err := newApp(cfg, store)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			run, runErr := a.scheduler.RunNow(ctx, models.RunTypeCLI)
			if run != nil {
				printRun(cmd.OutOrStdout(), run)
			}
			if runErr != nil {
				return fmt.Errorf("sync failed: %w", runErr)
			}
			return nil
		},
	}
}

func printRun(w io.Writer, run *models.SyncRun) {
	fmt.Fprintf(w, "run %s (%s): %s\n", run.RunID, run.RunType, statusText(run.Status))
	fmt.Fprintf(w, "  stage:     %s\n", run.Stage)
	fmt.Fprintf(w, "  reserves:  %d fetched, %d processed\n", run.ReservesFetched, run.ReservesProcessed)
	fmt.Fprintf(w, "  current:   %d fetched, %d processed\n", run.CurrentFetched, run.CurrentProcessed)
	fmt.Fprintf(w, "  future:    %d fetched, %d processed\n", run.FutureFetched, run.FutureProcessed)
	fmt.Fprintf(w, "  mappings:  %d created\n", run.MappingsCreated)
	fmt.Fprintf(w, "  inactive:  %d alerts deactivated\n", run.AlertsDeactivated)
	fmt.Fprintf(w, "  errors:    %d\n", run.ErrorCount)
	if run.ErrorMessage != nil {
		fmt.Fprintf(w, "  message:   %s\n", *run.ErrorMessage)
	}
}

func statusText(s models.RunStatus) string {
	switch s {
	case models.RunStatusCompleted:
		return color.GreenString(string(s))
	case models.RunStatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
