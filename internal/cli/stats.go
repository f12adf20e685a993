package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"coinwatch/internal/app"
)

var (
	statsCoin  string
	statsHours int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show windowed price aggregates for a coin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsCoin == "" {
			return fmt.Errorf("--coin must be provided")
		}
		if statsHours <= 0 {
			return fmt.Errorf("--hours must be greater than zero")
		}

		opts := app.StatsOptions{
			CoinID: statsCoin,
			Hours:  statsHours,
		}

		return getApp().Stats(cmd.Context(), opts)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsCoin, "coin", "", "Coin id or contract address")
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "Trailing window in hours")
}
