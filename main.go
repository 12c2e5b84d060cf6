package main

import (
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"

	"github.com/Govanator12/smart-meeting-sign/cmd"
	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

// Build-time variables injected by ldflags
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

func main() {
	// Load .env if present to allow credential overrides without editing
	// the config file. Project root first, then the XDG config dir.
	tryPaths := []string{".env"}
	if cfgHome, err := os.UserConfigDir(); err == nil {
		tryPaths = append(tryPaths, filepath.Join(cfgHome, "smart-meeting-sign", ".env"))
	}
	for _, p := range tryPaths {
		if _, err := os.Stat(p); err == nil {
			if loadErr := gotenv.Load(p); loadErr == nil {
				break
			}
		}
	}

	cmd.SetVersionInfo(Version, CommitHash, BuildTime)

	if err := cmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
