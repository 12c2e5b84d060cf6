package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Calendar     CalendarConfig     `mapstructure:"calendar"`
	Filters      FilterConfig       `mapstructure:"filters"`
	Timing       TimingConfig       `mapstructure:"timing"`
	Hardware     HardwareConfig     `mapstructure:"hardware"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
}

type CalendarConfig struct {
	CalendarID   string `mapstructure:"calendar_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type FilterConfig struct {
	IgnoreDeclined      bool   `mapstructure:"ignore_declined"`
	IgnoreAllDay        bool   `mapstructure:"ignore_all_day"`
	IgnoreOutOfOffice   bool   `mapstructure:"ignore_ooo"`
	PersonalWorkColorID string `mapstructure:"personal_work_color_id"`
	FocusTimeColorID    string `mapstructure:"focus_time_color_id"`
}

type TimingConfig struct {
	CalendarRefreshSeconds int `mapstructure:"calendar_refresh_seconds"`
	StatusCheckSeconds     int `mapstructure:"status_check_seconds"`
	MeetingBufferMinutes   int `mapstructure:"meeting_buffer_minutes"`
}

type HardwareConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Chip       string `mapstructure:"chip"`
	RelayLine  int    `mapstructure:"relay_line"`
	LEDLine    int    `mapstructure:"led_line"`
	ActiveLow  bool   `mapstructure:"relay_active_low"`
}

type ConnectivityConfig struct {
	ProbeAddr            string `mapstructure:"probe_addr"`
	CheckIntervalSeconds int    `mapstructure:"check_interval_seconds"`
	Interface            string `mapstructure:"interface"`
}

type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BrokerURL string `mapstructure:"broker_url"`
	TopicBase string `mapstructure:"topic_base"`
}

var defaultConfig = Config{
	Calendar: CalendarConfig{
		CalendarID: "primary",
	},
	Filters: FilterConfig{
		IgnoreDeclined:      true,
		IgnoreAllDay:        true,
		IgnoreOutOfOffice:   true,
		PersonalWorkColorID: "6", // tangerine
		FocusTimeColorID:    "5", // banana
	},
	Timing: TimingConfig{
		CalendarRefreshSeconds: 900,
		StatusCheckSeconds:     10,
		MeetingBufferMinutes:   2,
	},
	Hardware: HardwareConfig{
		Enabled:   true,
		Chip:      "gpiochip0",
		RelayLine: 15,
		LEDLine:   14,
		ActiveLow: true,
	},
	Connectivity: ConnectivityConfig{
		ProbeAddr:            "oauth2.googleapis.com:443",
		CheckIntervalSeconds: 60,
		Interface:            "wlan0",
	},
	MQTT: MQTTConfig{
		Enabled:   false,
		BrokerURL: "tcp://localhost:1883",
		TopicBase: "smart-meeting-sign",
	},
}

// RefreshInterval returns the calendar refresh cadence as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Timing.CalendarRefreshSeconds) * time.Second
}

// StatusCheckInterval returns the meeting evaluation cadence as a duration
func (c *Config) StatusCheckInterval() time.Duration {
	return time.Duration(c.Timing.StatusCheckSeconds) * time.Second
}

// MeetingBuffer returns the symmetric debounce buffer as a duration
func (c *Config) MeetingBuffer() time.Duration {
	return time.Duration(c.Timing.MeetingBufferMinutes) * time.Minute
}

// CheckInterval returns the connectivity probe cadence as a duration
func (c ConnectivityConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigName("config")

	if configPath == "" {
		configDir, err := getDefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configPath = configDir
	}

	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createDefaultConfig(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			if err := v.ReadInConfig(); err != nil {
				// If it still fails, just use defaults
				cfg := defaultConfig
				applyEnvOverrides(&cfg)
				return &cfg, nil
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides lets OAuth client credentials come from the environment
// (typically a .env file loaded at startup) instead of the config file.
func applyEnvOverrides(cfg *Config) {
	if id := os.Getenv("MEETING_SIGN_CLIENT_ID"); id != "" {
		cfg.Calendar.ClientID = id
	}
	if secret := os.Getenv("MEETING_SIGN_CLIENT_SECRET"); secret != "" {
		cfg.Calendar.ClientSecret = secret
	}
}

func (c *Config) validate() error {
	if c.Timing.CalendarRefreshSeconds <= 0 {
		return fmt.Errorf("calendar_refresh_seconds must be positive, got %d", c.Timing.CalendarRefreshSeconds)
	}
	if c.Timing.StatusCheckSeconds <= 0 {
		return fmt.Errorf("status_check_seconds must be positive, got %d", c.Timing.StatusCheckSeconds)
	}
	if c.Timing.MeetingBufferMinutes < 0 {
		return fmt.Errorf("meeting_buffer_minutes must not be negative, got %d", c.Timing.MeetingBufferMinutes)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("calendar.calendar_id", defaultConfig.Calendar.CalendarID)
	v.SetDefault("calendar.client_id", defaultConfig.Calendar.ClientID)
	v.SetDefault("calendar.client_secret", defaultConfig.Calendar.ClientSecret)

	v.SetDefault("filters.ignore_declined", defaultConfig.Filters.IgnoreDeclined)
	v.SetDefault("filters.ignore_all_day", defaultConfig.Filters.IgnoreAllDay)
	v.SetDefault("filters.ignore_ooo", defaultConfig.Filters.IgnoreOutOfOffice)
	v.SetDefault("filters.personal_work_color_id", defaultConfig.Filters.PersonalWorkColorID)
	v.SetDefault("filters.focus_time_color_id", defaultConfig.Filters.FocusTimeColorID)

	v.SetDefault("timing.calendar_refresh_seconds", defaultConfig.Timing.CalendarRefreshSeconds)
	v.SetDefault("timing.status_check_seconds", defaultConfig.Timing.StatusCheckSeconds)
	v.SetDefault("timing.meeting_buffer_minutes", defaultConfig.Timing.MeetingBufferMinutes)

	v.SetDefault("hardware.enabled", defaultConfig.Hardware.Enabled)
	v.SetDefault("hardware.chip", defaultConfig.Hardware.Chip)
	v.SetDefault("hardware.relay_line", defaultConfig.Hardware.RelayLine)
	v.SetDefault("hardware.led_line", defaultConfig.Hardware.LEDLine)
	v.SetDefault("hardware.relay_active_low", defaultConfig.Hardware.ActiveLow)

	v.SetDefault("connectivity.probe_addr", defaultConfig.Connectivity.ProbeAddr)
	v.SetDefault("connectivity.check_interval_seconds", defaultConfig.Connectivity.CheckIntervalSeconds)
	v.SetDefault("connectivity.interface", defaultConfig.Connectivity.Interface)

	v.SetDefault("mqtt.enabled", defaultConfig.MQTT.Enabled)
	v.SetDefault("mqtt.broker_url", defaultConfig.MQTT.BrokerURL)
	v.SetDefault("mqtt.topic_base", defaultConfig.MQTT.TopicBase)
}

func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.toml")

	if _, err := os.Stat(configFile); err == nil {
		return nil // Already exists
	}

	configContent := `# smart-meeting-sign configuration

[calendar]
calendar_id = "primary"   # or "your.email@gmail.com"
client_id = ""            # OAuth client ID (or MEETING_SIGN_CLIENT_ID env)
client_secret = ""        # OAuth client secret (or MEETING_SIGN_CLIENT_SECRET env)

[filters]
ignore_declined = true
ignore_all_day = true
ignore_ooo = true               # out-of-office events
personal_work_color_id = "6"    # tangerine
focus_time_color_id = "5"       # banana

[timing]
calendar_refresh_seconds = 900  # 15 minutes
status_check_seconds = 10
meeting_buffer_minutes = 2      # light on 2 min early, off 2 min late

[hardware]
enabled = true
chip = "gpiochip0"
relay_line = 15
led_line = 14
relay_active_low = true

[connectivity]
probe_addr = "oauth2.googleapis.com:443"
check_interval_seconds = 60
interface = "wlan0"

[mqtt]
enabled = false
broker_url = "tcp://localhost:1883"
topic_base = "smart-meeting-sign"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func getDefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "smart-meeting-sign"), nil
}

// GetDefaultConfigDir returns the default configuration directory path
func GetDefaultConfigDir() (string, error) {
	return getDefaultConfigDir()
}

// GetDefaultStateDir returns the default directory for persisted tokens and schedule state
func GetDefaultStateDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "state", "smart-meeting-sign"), nil
}
