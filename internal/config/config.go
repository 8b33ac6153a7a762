package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Sync intervals (minutes)
	HistorySyncMinutes  int
	MetadataSyncMinutes int
	PlaybackSyncMinutes int

	// How far back history syncs reach on first run (months)
	HistoryImportMonths int

	// Outbound request handling
	RequestTimeoutSeconds int
	PageDelayMs           int

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/trackarr.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("HISTORY_SYNC_MINUTES", 60)
	viper.SetDefault("METADATA_SYNC_MINUTES", 360)
	viper.SetDefault("PLAYBACK_SYNC_MINUTES", 15)
	viper.SetDefault("HISTORY_IMPORT_MONTHS", 12)
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	viper.SetDefault("PAGE_DELAY_MS", 250)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "trackarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		HistorySyncMinutes:  viper.GetInt("HISTORY_SYNC_MINUTES"),
		MetadataSyncMinutes: viper.GetInt("METADATA_SYNC_MINUTES"),
		PlaybackSyncMinutes: viper.GetInt("PLAYBACK_SYNC_MINUTES"),
		HistoryImportMonths: viper.GetInt("HISTORY_IMPORT_MONTHS"),

		RequestTimeoutSeconds: viper.GetInt("REQUEST_TIMEOUT_SECONDS"),
		PageDelayMs:           viper.GetInt("PAGE_DELAY_MS"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, "trackarr.db"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	// Guard against zero/negative intervals that would break the cron specs
	if config.HistorySyncMinutes < 1 {
		config.HistorySyncMinutes = 60
	}
	if config.MetadataSyncMinutes < 1 {
		config.MetadataSyncMinutes = 360
	}
	if config.PlaybackSyncMinutes < 1 {
		config.PlaybackSyncMinutes = 15
	}
	if config.HistoryImportMonths < 1 {
		config.HistoryImportMonths = 12
	}

	return config, nil
}

// RequestTimeout returns the outbound request timeout as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PageDelay returns the inter-page throttle as a duration
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}
