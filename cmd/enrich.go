package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hwlore/hwlore/pkg/device"
)

// enrichCmd implements: hwlore enrich <type> <manufacturer> <model>
var enrichCmd = &cobra.Command{
	Use:   "enrich <type> <manufacturer> <model>",
	Short: "Enrich a device with specs gathered from all sources",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := device.ParseType(args[0])
		if err != nil {
			return err
		}
		id := device.Identifier{Manufacturer: args[1], Model: args[2]}

		proxy, _ := cmd.Flags().GetString("proxy")
		forceRefresh, _ := cmd.Flags().GetBool("force-refresh")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(proxy)
		if err != nil {
			return err
		}
		defer a.close()

		info, err := a.service.Enrich(cmd.Context(), t, id, forceRefresh)
		if err != nil {
			return fmt.Errorf("could not enrich %s %s %s: %w", t, id.Manufacturer, id.Model, err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		printEnriched(info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.Flags().BoolP("force-refresh", "f", false, "Skip the result cache and query all sources again")
	enrichCmd.Flags().Bool("json", false, "Print the full result as JSON")
}

func printEnriched(info *device.EnrichedInfo) {
	fmt.Printf("%s %s  [%s, key %s]\n", info.Identifier.Manufacturer, info.Identifier.Model, info.Type, info.Key)
	if info.Description != "" {
		fmt.Printf("\n%s\n", info.Description)
	}
	if info.ReleaseDate != "" {
		fmt.Printf("\nReleased: %s\n", info.ReleaseDate)
	}

	if len(info.Categories) > 0 {
		for _, cat := range info.Categories {
			fmt.Printf("\n%s\n", cat.Name)
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			for _, e := range cat.Entries {
				fmt.Fprintf(w, "  %s\t%s %s\n", e.Label, e.Value, e.Unit)
			}
			w.Flush()
		}
	} else if len(info.Specs) > 0 {
		keys := make([]string, 0, len(info.Specs))
		for k := range info.Specs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s\t%s\n", k, info.Specs[k])
		}
		w.Flush()
	}

	if info.ProductPageURL != "" {
		fmt.Printf("\nProduct page: %s\n", info.ProductPageURL)
	}
	if info.SupportPageURL != "" {
		fmt.Printf("Support page: %s\n", info.SupportPageURL)
	}
	if len(info.Sources) > 0 {
		fmt.Printf("\nSources: %v\n", info.Sources)
	}
}
