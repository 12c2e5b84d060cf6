package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Health is the snapshot exposed to external collaborators: published over
// MQTT and written to the state directory for the status command.
type Health struct {
	RelayState          string    `json:"relay_state"`
	Reason              string    `json:"reason,omitempty"`
	Connected           bool      `json:"connected"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CurrentBackoff      string    `json:"current_backoff"`
	AppErrorStreak      int       `json:"app_error_streak"`
	LastError           string    `json:"last_error,omitempty"`
	CachedEvents        int       `json:"cached_events"`
	LastRefresh         time.Time `json:"last_refresh"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// healthFileName is the snapshot file within the state directory
const healthFileName = "health.json"

// WriteHealthFile persists the snapshot for out-of-process readers
func WriteHealthFile(stateDir string, h Health) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health snapshot: %w", err)
	}
	path := filepath.Join(stateDir, healthFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write health snapshot: %w", err)
	}
	return nil
}

// ReadHealthFile loads the last written snapshot
func ReadHealthFile(stateDir string) (*Health, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, healthFileName))
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse health snapshot: %w", err)
	}
	return &h, nil
}
