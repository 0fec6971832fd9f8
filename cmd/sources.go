package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// sourcesCmd lists the registered enrichment sources.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered enrichment sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("")
		if err != nil {
			return err
		}
		defer a.close()

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "NAME\tPRIORITY\n")
		for _, s := range a.registry.All() {
			fmt.Fprintf(w, "%s\t%d\n", s.Name(), s.Priority())
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
