package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"sentiment-alerts/internal/classify"
	"sentiment-alerts/internal/service"
)

// Check runs one manual processing pass and prints the outcome.
func (a *App) Check(ctx context.Context, coins []string, profileName string) error {
	profile, err := classify.ProfileByName(profileName)
	if err != nil {
		return err
	}

	history, jobs, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := service.New(a.Config, a.newFetcher(), history, jobs, a.newNotifier(), a.Logger)
	if err != nil {
		return err
	}

	result, err := svc.Process(ctx, service.Trigger{
		CheckType: service.CheckManual,
		Coins:     coins,
		Profile:   profile,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "job %s completed: %d coins processed, %d alerts, %s\n",
		result.JobID, result.CoinsProcessed, len(result.Alerts), result.Duration.Round(time.Millisecond))
	for _, alert := range result.Alerts {
		fmt.Fprintln(os.Stdout, "  "+alert.Message)
	}
	return nil
}
