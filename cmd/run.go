package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/Govanator12/smart-meeting-sign/internal/auth"
	"github.com/Govanator12/smart-meeting-sign/internal/calendar"
	"github.com/Govanator12/smart-meeting-sign/internal/daemon"
	"github.com/Govanator12/smart-meeting-sign/internal/hardware"
	"github.com/Govanator12/smart-meeting-sign/internal/logger"
	"github.com/Govanator12/smart-meeting-sign/internal/schedule"
	"github.com/Govanator12/smart-meeting-sign/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the meeting light daemon",
	Long: `Run the control loop: probe connectivity, refresh the calendar window,
evaluate meeting state and drive the relay. Intended to run under systemd;
when WatchdogSec is configured the loop feeds the systemd watchdog on every
iteration and through every wait.

Examples:
  smart-meeting-sign run                 # Run with config defaults
  smart-meeting-sign run --verbose       # Run with debug logging`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := auth.NewStore(stateDir)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}

	feed := watchdogFeeder()

	tokens := auth.NewManager(store, auth.Options{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		Feed:         feed,
	})
	if !tokens.HasCredential() {
		return fmt.Errorf("no stored credential; run 'smart-meeting-sign auth' first")
	}

	output, err := buildOutput(feed)
	if err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}
	defer func() {
		if closeErr := output.Close(); closeErr != nil {
			logger.Error("failed to release hardware", "error", closeErr)
		}
	}()

	// Startup indication before any network activity
	if err := output.Blink(2, 200*time.Millisecond); err != nil {
		logger.Warn("startup blink failed", "error", err)
	}

	svc, err := calendar.NewService(ctx, tokens)
	if err != nil {
		return fmt.Errorf("failed to build calendar client: %w", err)
	}

	cache := schedule.NewCache()
	machine := schedule.NewMachine(cfg.MeetingBuffer())
	pipeline := calendar.NewPipeline(svc, cache, cfg.Calendar.CalendarID, cfg.Filters)

	publisher, err := telemetry.NewPublisher(cfg.MQTT, "smart-meeting-sign")
	if err != nil {
		// Telemetry is best effort; the sign must work without the broker
		logger.Warn("telemetry disabled", "error", err)
	}
	defer publisher.Close()

	coord := daemon.New(daemon.Options{
		Cache:                cache,
		Machine:              machine,
		Pipeline:             pipeline,
		Tokens:               tokens,
		Output:               output,
		Publisher:            publisher,
		Prober:               &daemon.DialProber{Addr: cfg.Connectivity.ProbeAddr},
		Feed:                 feed,
		StateDir:             stateDir,
		Interface:            cfg.Connectivity.Interface,
		RefreshInterval:      cfg.RefreshInterval(),
		EvaluateInterval:     cfg.StatusCheckInterval(),
		ConnectivityInterval: cfg.Connectivity.CheckInterval(),
	})

	if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		logger.Debug("sd_notify ready failed", "error", err)
	}

	runErr := coord.Run(ctx)

	// De-energize before exit regardless of why we are leaving
	if err := output.SetRelay(false); err != nil {
		logger.Error("failed to reset relay on shutdown", "error", err)
	}
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)

	return runErr
}

// watchdogFeeder returns the liveness hook. Under systemd with WatchdogSec
// set it notifies the watchdog; otherwise it is a no-op and the loop pacing
// is unchanged.
func watchdogFeeder() func() {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}
	logger.Info("systemd watchdog enabled", "timeout", interval)
	return func() {
		_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
	}
}

func buildOutput(feed func()) (hardware.Output, error) {
	if !cfg.Hardware.Enabled {
		logger.Info("hardware disabled, using no-op output")
		return hardware.Noop{}, nil
	}
	return hardware.NewGPIO(hardware.Options{
		Chip:      cfg.Hardware.Chip,
		RelayLine: cfg.Hardware.RelayLine,
		LEDLine:   cfg.Hardware.LEDLine,
		ActiveLow: cfg.Hardware.ActiveLow,
		Feed:      feed,
	})
}
