package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tributary/internal/app"
)

var (
	historyMint   string
	historyStatus string
	historyFrom   string
	historyTo     string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent distribution runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.HistoryOptions{
			Mint:   historyMint,
			Status: historyStatus,
			Limit:  historyLimit,
		}

		if historyFrom != "" {
			from, err := time.Parse(time.RFC3339, historyFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if historyTo != "" {
			to, err := time.Parse(time.RFC3339, historyTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyMint, "mint", "", "Filter by mint address")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by recipient status (e.g. failed)")
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "End timestamp (RFC3339, exclusive)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to display")
}
