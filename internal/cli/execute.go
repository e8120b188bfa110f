package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tributary/internal/app"
)

var (
	execAmount     string
	execMode       string
	execThreshold  string
	execExclude    []string
	execMaxHolders int
	execNoCache    bool
	execBatchSize  int
	execResume     string
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run a distribution: snapshot, allocate, and submit transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if execResume == "" && execAmount == "" {
			return fmt.Errorf("--amount is required unless resuming with --resume")
		}

		rec, err := getApp().Execute(cmd.Context(), app.ExecuteOptions{
			Simulate: app.SimulateOptions{
				Collect: app.CollectOptions{
					Threshold:  execThreshold,
					Exclude:    execExclude,
					MaxHolders: execMaxHolders,
					NoCache:    execNoCache,
				},
				TotalAmount: execAmount,
				Mode:        execMode,
			},
			BatchSize: execBatchSize,
			Resume:    execResume,
		})
		if rec != nil {
			fmt.Printf("request: %s\nconfirmed: %d/%d\nfailed: %d\n",
				rec.Request.ID, rec.ConfirmedCount(), len(rec.Results), rec.FailedCount())
			if !rec.Complete() {
				fmt.Printf("run incomplete; resume with: tributary execute --resume %s\n", rec.Request.ID)
			}
		}
		return err
	},
}

func init() {
	executeCmd.Flags().StringVar(&execAmount, "amount", "", "Total amount to distribute (base units)")
	executeCmd.Flags().StringVar(&execMode, "mode", "", "Allocation mode: equal or proportional (defaults to config)")
	executeCmd.Flags().StringVar(&execThreshold, "threshold", "", "Minimum balance for inclusion (defaults to config)")
	executeCmd.Flags().StringSliceVar(&execExclude, "exclude", nil, "Addresses to exclude from the snapshot")
	executeCmd.Flags().IntVar(&execMaxHolders, "max-holders", 0, "Keep only the N largest balances")
	executeCmd.Flags().BoolVar(&execNoCache, "no-cache", false, "Bypass the snapshot cache")
	executeCmd.Flags().IntVar(&execBatchSize, "batch-size", 0, "Concurrent transfers per batch (defaults to config)")
	executeCmd.Flags().StringVar(&execResume, "resume", "", "Resume an interrupted run by request id")
}
