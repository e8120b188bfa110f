package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tributary/internal/distribution"
	"tributary/internal/ledger"
)

// runPoint is one distribution run flattened for rendering.
type runPoint struct {
	createdAt time.Time
	record    *distribution.Record
}

// Export renders distribution history as CSV and/or a PNG chart of per-run
// confirmed totals over time.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	led, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	if led == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeLedger()

	filter := ledger.Filter{From: opts.From, To: opts.To}

	var points []runPoint
	err = led.Query(ctx, filter, func(rec *distribution.Record) error {
		points = append(points, runPoint{createdAt: rec.Request.CreatedAt, record: rec})
		return nil
	})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Msg("no distribution records found for export window")
		return nil
	}

	// Query returns newest first; charts want chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	downsampled := downsampleRuns(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting distribution runs")

	if opts.CSVPath != "" {
		if err := writeRunsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRunsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRuns(points []runPoint, max int) []runPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]runPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeRunsCSV(path string, points []runPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "request_id", "mint", "mode", "total_amount", "recipients", "confirmed", "failed", "completed_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		rec := p.record
		completed := ""
		if rec.CompletedAt != nil {
			completed = rec.CompletedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			rec.Request.CreatedAt.UTC().Format(time.RFC3339),
			rec.Request.ID.String(),
			rec.Request.Mint,
			string(rec.Request.Mode),
			rec.Request.TotalAmount.String(),
			strconv.Itoa(len(rec.Results)),
			strconv.Itoa(rec.ConfirmedCount()),
			strconv.Itoa(rec.FailedCount()),
			completed,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRunsPNG(path string, points []runPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	totals := make([]float64, len(points))
	confirmed := make([]float64, len(points))

	for i, p := range points {
		x[i] = p.record.Request.CreatedAt
		totals[i] = p.record.Request.TotalAmount.InexactFloat64()

		sum := 0.0
		for _, res := range p.record.Results {
			if res.Status == distribution.StatusConfirmed {
				sum += res.Amount.InexactFloat64()
			}
		}
		confirmed[i] = sum
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Amount (base units)",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Requested",
				XValues: x,
				YValues: totals,
			},
			chart.TimeSeries{
				Name:    "Confirmed",
				XValues: x,
				YValues: confirmed,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
