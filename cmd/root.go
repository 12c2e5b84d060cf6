package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Govanator12/smart-meeting-sign/internal/config"
	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

var (
	cfgFile  string
	stateDir string
	verbose  bool
	cfg      *config.Config

	// Version information
	version    string
	commitHash string
	buildTime  string
)

var rootCmd = &cobra.Command{
	Use:   "smart-meeting-sign",
	Short: "Google Calendar driven meeting light",
	Long: `A small daemon that keeps a relay-driven meeting light in sync with your
Google Calendar. It authenticates with the device flow, polls the next two days
of events, filters out the ones that should not light the sign (declined,
all-day, out-of-office, chosen colors), and switches the relay with a symmetric
buffer around each meeting.

Designed to run unattended behind a supervisor (systemd) on a small board.`,
}

func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, commit, buildTimeStr string) {
	version = v
	commitHash = commit
	buildTime = buildTimeStr

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commitHash, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/smart-meeting-sign/config.toml)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory for tokens and health (default: ~/.local/state/smart-meeting-sign)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(statusCmd)
}

func initConfig() {
	// Initialize logger with verbose flag
	logger.Init(verbose)

	if stateDir == "" {
		defaultStateDir, err := config.GetDefaultStateDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting default state directory: %v\n", err)
			os.Exit(1)
		}
		stateDir = defaultStateDir
	}

	// Load configuration
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
