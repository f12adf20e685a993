package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateCoin     string
	simulatePrevious float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCoin == "" {
			return errors.New("--coin 必须提供")
		}
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous 与 --current 必须大于 0")
		}

		previous := decimal.NewFromFloat(simulatePrevious)
		current := decimal.NewFromFloat(simulateCurrent)
		return getApp().SimulateAlert(cmd.Context(), simulateCoin, previous, current)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCoin, "coin", "", "Coin id or contract address")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "上一次观测价格 (USD)")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "当前观测价格 (USD)")
}
