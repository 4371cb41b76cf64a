package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

func mappingsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect or reset park to reserve mappings",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every stored mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer logging.Close()
			defer store.Close()

			mappings, err := store.ListMappings(cmd.Context())
			if err != nil {
				return err
			}
			printMappings(cmd.OutOrStdout(), mappings)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <park_id>",
		Short: "Delete a park's mapping so the next sync resolves it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer logging.Close()
			defer store.Close()

			deleted, err := store.DeleteMapping(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no mapping stored for park %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared mapping for park %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func printMappings(w io.Writer, mappings []models.ParkMapping) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARK ID\tPARK NAME\tOBJECT ID\tRESERVE\tSOURCE")
	for _, m := range mappings {
		objectID, reserve := "-", "-"
		if m.ObjectID != nil {
			objectID = fmt.Sprint(*m.ObjectID)
		}
		if m.ReserveName != "" {
			reserve = m.ReserveName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ParkID, m.ParkName, objectID, reserve, m.MatchSource)
	}
	_ = tw.Flush()
}
