package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Govanator12/smart-meeting-sign/internal/auth"
	"github.com/Govanator12/smart-meeting-sign/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's last known state",
	Long: `Read the health snapshot the running daemon writes to the state directory
and print the relay state, connectivity and error counters. Works without
talking to the daemon, so it is safe from scripts and shell prompts.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := auth.NewStore(stateDir)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	if store.Load() != nil {
		fmt.Println("Credential: present")
	} else {
		fmt.Println("Credential: absent (run 'smart-meeting-sign auth')")
	}

	h, err := daemon.ReadHealthFile(stateDir)
	if err != nil {
		fmt.Println("No health snapshot found; is the daemon running?")
		return nil
	}

	fmt.Printf("Relay:       %s", h.RelayState)
	if h.Reason != "" {
		fmt.Printf(" (%s)", h.Reason)
	}
	fmt.Println()
	fmt.Printf("Connected:   %v\n", h.Connected)
	if !h.Connected {
		fmt.Printf("  failures:  %d, backoff %s\n", h.ConsecutiveFailures, h.CurrentBackoff)
	}
	fmt.Printf("Events:      %d cached, last refresh %s\n", h.CachedEvents, h.LastRefresh.Format("2006-01-02 15:04:05 MST"))
	if h.LastError != "" {
		fmt.Printf("Last error:  %s (streak %d)\n", h.LastError, h.AppErrorStreak)
	}
	fmt.Printf("Updated:     %s\n", h.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}
