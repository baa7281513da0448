// Package config loads NEXUS configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so a
// bare deployment can run on env vars alone (the .env file is loaded
// by main via godotenv before this package is consulted).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the assistant.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	// AuthToken is the bearer token required on API requests.
	AuthToken string `yaml:"auth_token"`

	// Owner is the user identifier all rows are scoped to.
	Owner string `yaml:"owner"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`

	Gemini   GeminiConfig   `yaml:"gemini"`
	Calendar CalendarConfig `yaml:"calendar"`
	Discord  DiscordConfig  `yaml:"discord"`
	Sync     SyncConfig     `yaml:"sync"`

	// MaxTurnIterations bounds the tool-calling loop per user turn.
	MaxTurnIterations int `yaml:"max_turn_iterations"`
}

// GeminiConfig configures the model client.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// CalendarConfig configures the Google Calendar client.
type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
	Timezone        string `yaml:"timezone"`
}

// DiscordConfig configures the optional Discord surface.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// SyncConfig configures periodic calendar reconciliation.
type SyncConfig struct {
	// Interval between automatic reconciliation passes. Zero disables
	// the ticker; the /api/sync endpoint still works.
	Interval time.Duration `yaml:"interval"`
}

// Load reads the config file at path (optional) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:            ":8080",
		Owner:             "default",
		DataDir:           "data",
		MaxTurnIterations: 8,
		Gemini:            GeminiConfig{Model: "gemini-2.5-pro"},
		Calendar:          CalendarConfig{Timezone: "America/Sao_Paulo"},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("auth token required (set AUTH_TOKEN or auth_token in %s)", path)
	}
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required (set GEMINI_API_KEY)")
	}
	if cfg.MaxTurnIterations <= 0 {
		cfg.MaxTurnIterations = 8
	}

	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Listen, "LISTEN_ADDR")
	setString(&cfg.AuthToken, "AUTH_TOKEN")
	setString(&cfg.Owner, "OWNER_ID")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "GEMINI_MODEL")
	setString(&cfg.Calendar.CredentialsFile, "GOOGLE_CALENDAR_CREDENTIALS_FILE")
	setString(&cfg.Calendar.CalendarID, "GOOGLE_CALENDAR_ID")
	setString(&cfg.Calendar.Timezone, "CALENDAR_TIMEZONE")
	setString(&cfg.Discord.Token, "DISCORD_TOKEN")
	setString(&cfg.Discord.ChannelID, "DISCORD_CHANNEL_ID")

	if v := os.Getenv("MAX_TURN_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTurnIterations = n
		}
	}
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = d
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
