package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Bot         BotConfig       `toml:"bot"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig     `toml:"badger"`
	Files  FilesystemConfig `toml:"files"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// FilesystemConfig holds the directories for file artifacts
type FilesystemConfig struct {
	Uploads   string `toml:"uploads"`   // Uploaded spreadsheets
	Downloads string `toml:"downloads"` // Per-order browser download directories
	Archives  string `toml:"archives"`  // Generated zip archives
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for WebSocket progress streaming
type WebSocketConfig struct {
	MinLevel string `toml:"min_level"` // Minimum log level to broadcast ("debug", "info", "warn", "error")
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"progress": "250ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// BotConfig contains configuration for the browser export engine
type BotConfig struct {
	TargetURL        string        `toml:"target_url"`        // Default export screen entry URL
	Username         string        `toml:"username"`          // Default login (overridable per run)
	Password         string        `toml:"password"`          // Default password (overridable per run)
	Headless         bool          `toml:"headless"`          // Run Chrome headless
	StrictNavigation bool          `toml:"strict_navigation"` // Treat navigation failure as fatal instead of soft
	AttemptBudget    int           `toml:"attempt_budget"`    // Attempts per invoice before marking it failed
	ShellTimeout     time.Duration `toml:"shell_timeout"`     // Wait bound for the application shell after login
	ElementTimeout   time.Duration `toml:"element_timeout"`   // Wait bound for individual controls
	OverlayTimeout   time.Duration `toml:"overlay_timeout"`   // Wait bound for loading overlays to clear
	DownloadInterval time.Duration `toml:"download_interval"` // Download-capture poll interval
	DownloadAttempts int           `toml:"download_attempts"` // Download-capture poll iterations
	LocalCopy        bool          `toml:"local_copy"`        // Copy finished archives to the user's Downloads folder
}

// SchedulerConfig contains configuration for background maintenance
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for the maintenance sweep
	StaleAfter    string `toml:"stale_after"`    // Duration after which a silent running order is failed
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in traho.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Files: FilesystemConfig{
				Uploads:   "./data/uploads",
				Downloads: "./data/downloads",
				Archives:  "./data/archives",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			// Throttle per-item progress so large orders don't flood clients
			ThrottleIntervals: map[string]string{
				"progress": "250ms",
			},
		},
		Bot: BotConfig{
			Headless:         false, // The target app behaves better with a real window
			StrictNavigation: false,
			AttemptBudget:    3,
			ShellTimeout:     120 * time.Second,
			ElementTimeout:   60 * time.Second,
			OverlayTimeout:   10 * time.Second,
			DownloadInterval: 500 * time.Millisecond,
			DownloadAttempts: 20,
			LocalCopy:        true,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepSchedule: "*/5 * * * *",
			StaleAfter:    "30m",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TRAHO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("TRAHO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TRAHO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("TRAHO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("TRAHO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TRAHO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if target := os.Getenv("TRAHO_BOT_TARGET_URL"); target != "" {
		config.Bot.TargetURL = target
	}
	if username := os.Getenv("TRAHO_BOT_USERNAME"); username != "" {
		config.Bot.Username = username
	}
	if password := os.Getenv("TRAHO_BOT_PASSWORD"); password != "" {
		config.Bot.Password = password
	}
	if headless := os.Getenv("TRAHO_BOT_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Bot.Headless = h
		}
	}
}

// StaleAfterDuration parses the scheduler stale_after setting, with a fallback
func (c *SchedulerConfig) StaleAfterDuration() time.Duration {
	if d, err := time.ParseDuration(c.StaleAfter); err == nil && d > 0 {
		return d
	}
	return 30 * time.Minute
}

// IsDevelopment returns true when running in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
