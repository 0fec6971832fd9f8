package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// lookupCmd queries the knowledge store without touching the network.
var lookupCmd = &cobra.Command{
	Use:   "lookup <manufacturer> <model>",
	Short: "Look up a device in the offline knowledge store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp("")
		if err != nil {
			return err
		}
		defer a.close()

		learned, ok := a.knowledge.Lookup(args[0], args[1])
		if !ok {
			return fmt.Errorf("no learned device matches %q %q", args[0], args[1])
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(learned)
		}

		fmt.Printf("%s %s  [%s, key %s]\n", learned.Identifier.Manufacturer, learned.Identifier.Model, learned.Type, learned.Key)
		fmt.Printf("First learned: %s   Last verified: %s\n", learned.CreatedAt.Format("2006-01-02"), learned.LastVerified.Format("2006-01-02"))
		if learned.Description != "" {
			fmt.Printf("\n%s\n", learned.Description)
		}

		keys := make([]string, 0, len(learned.Specs))
		for k := range learned.Specs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "  SPEC\tVALUE\tCONFIDENCE\tSOURCES\n")
		for _, k := range keys {
			s := learned.Specs[k]
			fmt.Fprintf(w, "  %s\t%s\t%.2f\t%v\n", k, s.Value, s.Confidence, s.Sources)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().Bool("json", false, "Print the learned device as JSON")
}
