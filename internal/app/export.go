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

	"sentiment-alerts/internal/storage"
)

// Export renders one symbol's sentiment history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	observations, err := store.ListObservations(ctx, opts.Symbol, from)
	if err != nil {
		return err
	}

	// ListObservations returns newest first; exports are chronological.
	chronological := make([]storage.Observation, 0, len(observations))
	for i := len(observations) - 1; i >= 0; i-- {
		if observations[i].CreatedAt.After(to) {
			continue
		}
		chronological = append(chronological, observations[i])
	}

	if len(chronological) == 0 {
		a.Logger.Info().Str("symbol", opts.Symbol).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsampleObservations(chronological, opts.MaxPoints)
	a.Logger.Info().Str("symbol", opts.Symbol).Int("total", len(chronological)).Int("exported", len(downsampled)).Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeObservationsPNG(opts.PNGPath, opts.Symbol, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleObservations(observations []storage.Observation, max int) []storage.Observation {
	if max <= 0 || len(observations) <= max {
		return observations
	}

	result := make([]storage.Observation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeObservationsCSV(path string, observations []storage.Observation) error {
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

	header := []string{"created_at", "symbol", "sentiment", "price", "interactions_24h", "percent_change_24h", "galaxy_score"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			obs.CreatedAt.Format(time.RFC3339),
			obs.Symbol,
			obs.Sentiment.String(),
			obs.Price.String(),
			strconv.FormatInt(obs.Interactions24h, 10),
			obs.PercentChange24h.String(),
			obs.GalaxyScore.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeObservationsPNG(path, symbol string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(observations))
	sentiment := make([]float64, len(observations))
	galaxy := make([]float64, len(observations))
	price := make([]float64, len(observations))

	for i, obs := range observations {
		x[i] = obs.CreatedAt
		sentiment[i] = obs.Sentiment.InexactFloat64()
		galaxy[i] = obs.GalaxyScore.InexactFloat64()
		price[i] = obs.Price.InexactFloat64()
	}

	scoreFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Title:  symbol + " social sentiment",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Score (0-100)",
			ValueFormatter: scoreFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: scoreFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Sentiment",
				XValues: x,
				YValues: sentiment,
			},
			chart.TimeSeries{
				Name:    "Galaxy Score",
				XValues: x,
				YValues: galaxy,
			},
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: price,
				YAxis:   chart.YAxisSecondary,
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
