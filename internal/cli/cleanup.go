package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"coinwatch/internal/app"
)

var (
	cleanupDays   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records older than the retention cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cleanupDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.CleanupOptions{
			Days:   cleanupDays,
			DryRun: cleanupDryRun,
		}

		return getApp().Cleanup(cmd.Context(), opts)
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Delete records older than this many days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report the cutoff without deleting")
}
