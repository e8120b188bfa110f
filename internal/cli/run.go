package cli

import (
	"time"

	"github.com/spf13/cobra"

	"tributary/internal/app"
)

var (
	runAmount   string
	runMode     string
	runInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the recurring distribution daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{
			Amount:   runAmount,
			Mode:     runMode,
			Interval: runInterval,
		})
	},
}

func init() {
	runCmd.Flags().StringVar(&runAmount, "amount", "", "Amount distributed each round (defaults to scheduler.run_amount)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Allocation mode: equal or proportional (defaults to config)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Round interval (defaults to scheduler.interval)")
}
