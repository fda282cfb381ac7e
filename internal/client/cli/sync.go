package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
)

// Sync runs one reconciliation cycle synchronously and prints the report.
func (a *App) Sync(ctx context.Context) error {
	if a.runner == nil {
		fmt.Println("Sync is not available; log in while the server is reachable.")
		return nil
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Synchronizing..."
	_ = s.Color("cyan")
	s.Start()

	report, err := a.runner.RunOnce(ctx)
	s.Stop()

	if err != nil {
		if errors.Is(err, common.ErrSyncInProgress) {
			fmt.Println("A sync is already running; your request was queued.")
			return nil
		}
		fmt.Println(color.RedString("✗"), "Sync failed:", err)
		return err
	}

	printReport(report)
	return nil
}

// SyncStatus prints the state of the last reconciliation.
func (a *App) SyncStatus(ctx context.Context) error {
	if a.runner == nil {
		fmt.Println("Sync is not running.")
		return nil
	}

	st := a.runner.Status()
	if st.InFlight {
		fmt.Println("A sync cycle is in flight.")
	}
	if st.LastRunAt.IsZero() {
		fmt.Println("No sync has completed yet.")
		return nil
	}

	fmt.Printf("Last run: %s\n", st.LastRunAt.Format(time.RFC3339))
	if st.LastError != "" {
		fmt.Println(color.RedString("✗"), "Last error:", st.LastError)
	}
	if st.LastReport != nil {
		printReport(st.LastReport)
	}
	return nil
}

func printReport(r *models.SyncReport) {
	fmt.Println(color.GreenString("✓"), "Sync complete:",
		r.Pushed, "pushed,", r.Adopted, "adopted,", r.Purged, "purged")

	for _, c := range r.Conflicts {
		side := "remote"
		if c.Winner == models.SideLocal {
			side = "local"
		}
		fmt.Println(color.YellowString("!"), "conflict on", c.ID+":", side, "version kept ("+c.Reason+")")
	}
	for _, f := range r.Failed {
		fmt.Println(color.RedString("✗"), "skipped", f.ID+":", f.Cause)
	}
}
