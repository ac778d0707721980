package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/storage"
)

// Show prints recent observations or recent processing jobs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Jobs {
		return showJobs(ctx, store, opts.Limit)
	}
	return showObservations(ctx, store, opts.Limit)
}

func showObservations(ctx context.Context, store *storage.Store, limit int) error {
	observations, err := store.ListRecentObservations(ctx, limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tSentiment\tPrice\tChange24h%\tGalaxy\tInteractions")

	for _, obs := range observations {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			obs.CreatedAt.UTC().Format(time.RFC3339),
			obs.Symbol,
			formatDecimal(obs.Sentiment, 1),
			formatDecimal(obs.Price, 4),
			formatDecimal(obs.PercentChange24h, 2),
			formatDecimal(obs.GalaxyScore, 1),
			obs.Interactions24h,
		)
	}

	return writer.Flush()
}

func showJobs(ctx context.Context, store *storage.Store, limit int) error {
	jobs, err := store.ListRecentJobs(ctx, limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stdout, "no processing jobs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tJob\tStatus\tCoins\tAlerts\tDuration\tError")

	for _, job := range jobs {
		duration := ""
		if job.DurationMS != nil {
			duration = fmt.Sprintf("%dms", *job.DurationMS)
		}
		errMsg := ""
		if job.ErrorMessage != nil {
			errMsg = sanitizeInline(*job.ErrorMessage)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			job.CreatedAt.UTC().Format(time.RFC3339),
			shortID(job.ID),
			job.Status,
			job.CoinsProcessed,
			job.AlertsGenerated,
			duration,
			errMsg,
		)
	}

	return writer.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
