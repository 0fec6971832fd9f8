package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Inspect and maintain the image cache",
}

var imagesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show image cache usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("")
		if err != nil {
			return err
		}
		defer a.close()

		count, total := a.images.Stats()
		fmt.Printf("Cached images: %d (%.1f MB)\n", count, float64(total)/(1<<20))
		return nil
	},
}

var imagesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove images older than a number of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive")
		}

		a, err := openApp("")
		if err != nil {
			return err
		}
		defer a.close()

		removed := a.images.CleanupOlderThan(time.Duration(days) * 24 * time.Hour)
		fmt.Printf("Removed %d images\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesStatsCmd)
	imagesCmd.AddCommand(imagesCleanupCmd)
	imagesCleanupCmd.Flags().Int("days", 90, "Remove images cached more than this many days ago")
}
