package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tributary/internal/app"
)

var (
	simAmount     string
	simMode       string
	simThreshold  string
	simExclude    []string
	simMaxHolders int
	simNoCache    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Preview the allocation a distribution would execute",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Collect: app.CollectOptions{
				Threshold:  simThreshold,
				Exclude:    simExclude,
				MaxHolders: simMaxHolders,
				NoCache:    simNoCache,
			},
			TotalAmount: simAmount,
			Mode:        simMode,
		})
		if err != nil {
			return err
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Recipient\tAmount")
		for _, entry := range result.Entries {
			fmt.Fprintf(writer, "%s\t%s\n", entry.Recipient, entry.Amount.String())
		}
		if err := writer.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nrecipients: %d\nremainder: %s\n", len(result.Entries), result.Remainder.String())
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simAmount, "amount", "", "Total amount to distribute (base units)")
	simulateCmd.Flags().StringVar(&simMode, "mode", "", "Allocation mode: equal or proportional (defaults to config)")
	simulateCmd.Flags().StringVar(&simThreshold, "threshold", "", "Minimum balance for inclusion (defaults to config)")
	simulateCmd.Flags().StringSliceVar(&simExclude, "exclude", nil, "Addresses to exclude from the snapshot")
	simulateCmd.Flags().IntVar(&simMaxHolders, "max-holders", 0, "Keep only the N largest balances")
	simulateCmd.Flags().BoolVar(&simNoCache, "no-cache", false, "Bypass the snapshot cache")
}
