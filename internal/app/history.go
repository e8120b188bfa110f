package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"tributary/internal/distribution"
	"tributary/internal/ledger"
)

// History prints recent distribution records.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	led, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	if led == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeLedger()

	filter := ledger.Filter{
		Mint:   opts.Mint,
		Status: distribution.Status(opts.Status),
		From:   opts.From,
		To:     opts.To,
		Limit:  opts.Limit,
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tRequest\tMint\tMode\tTotal\tRecipients\tConfirmed\tFailed\tCompleted")

	found := 0
	err = led.Query(ctx, filter, func(rec *distribution.Record) error {
		found++
		completed := "-"
		if rec.CompletedAt != nil {
			completed = rec.CompletedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			rec.Request.CreatedAt.UTC().Format(time.RFC3339),
			rec.Request.ID,
			shortAddress(rec.Request.Mint),
			rec.Request.Mode,
			rec.Request.TotalAmount.String(),
			len(rec.Results),
			rec.ConfirmedCount(),
			rec.FailedCount(),
			completed,
		)
		return nil
	})
	if err != nil {
		return err
	}

	if found == 0 {
		fmt.Fprintln(os.Stdout, "no distribution records found")
		return nil
	}
	return writer.Flush()
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}
