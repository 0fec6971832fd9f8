package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// historyCmd prints recent knowledge-store mutations.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent changes to the knowledge store",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp("")
		if err != nil {
			return err
		}
		defer a.close()

		events, err := a.history.ListRecent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No history yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "WHEN\tDEVICE\tSPEC\tCHANGE\tSOURCE\tCONF\n")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\n",
				e.OccurredAt.Format("2006-01-02 15:04"), e.DeviceKey, e.SpecKey, e.ChangeType, e.Source, e.Confidence)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 50, "Maximum number of events to show")
}
