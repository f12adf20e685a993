package cli

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show record store totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Info(cmd.Context())
	},
}
