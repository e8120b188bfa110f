package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tributary/internal/app"
)

var (
	collectMint       string
	collectThreshold  string
	collectExclude    []string
	collectMaxHolders int
	collectNoCache    bool
	collectJSON       bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Snapshot current token holders for a mint",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := getApp().Collect(cmd.Context(), app.CollectOptions{
			Mint:       collectMint,
			Threshold:  collectThreshold,
			Exclude:    collectExclude,
			MaxHolders: collectMaxHolders,
			NoCache:    collectNoCache,
		})
		if err != nil {
			return err
		}

		if collectJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Address\tBalance")
		for _, holder := range snap.Holders {
			fmt.Fprintf(writer, "%s\t%s\n", holder.Address, holder.Balance.String())
		}
		if err := writer.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nmint: %s\nholders: %d\ntotal balance: %s\ncaptured: %s\n",
			snap.Mint, len(snap.Holders), snap.TotalBalance().String(), snap.CapturedAt.UTC().Format(time.RFC3339))
		if snap.Truncated {
			fmt.Println("note: holder list truncated to the configured maximum")
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectMint, "mint", "", "Mint to snapshot (defaults to solana.mint)")
	collectCmd.Flags().StringVar(&collectThreshold, "threshold", "", "Minimum balance for inclusion (defaults to config)")
	collectCmd.Flags().StringSliceVar(&collectExclude, "exclude", nil, "Addresses to exclude from the snapshot")
	collectCmd.Flags().IntVar(&collectMaxHolders, "max-holders", 0, "Keep only the N largest balances")
	collectCmd.Flags().BoolVar(&collectNoCache, "no-cache", false, "Bypass the snapshot cache")
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "Emit the snapshot as JSON")
}
