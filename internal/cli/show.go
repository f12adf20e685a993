package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"coinwatch/internal/app"
)

var (
	showCoin  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent persisted price records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showCoin == "" {
			return fmt.Errorf("--coin must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			CoinID: showCoin,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCoin, "coin", "", "Coin id or contract address")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of records to display")
}
