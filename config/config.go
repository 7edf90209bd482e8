// Package config provides configuration management for the campaign engine.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the campaign engine
type Config struct {
	// LinkedIn credentials
	LinkedIn CredentialsConfig `yaml:"linkedin"`

	// Browser automation settings
	Browser BrowserConfig `yaml:"browser"`

	// Humanized timing and motion settings
	Humanize HumanizeConfig `yaml:"humanize"`

	// Daily action caps
	RateLimits RateLimitConfig `yaml:"rate_limits"`

	// Note and message templates
	Messaging MessagingConfig `yaml:"messaging"`

	// Campaign run settings
	Campaign CampaignConfig `yaml:"campaign"`

	// Ledger persistence settings
	Storage StorageConfig `yaml:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// CredentialsConfig holds account credentials
type CredentialsConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	UserDataDir    string `yaml:"user_data_dir"`
	Timeout        int    `yaml:"timeout_seconds"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// HumanizeConfig holds the distribution bounds for timing and motion plans
type HumanizeConfig struct {
	// Inter-action delay bounds in seconds
	MinDelaySeconds float64 `yaml:"min_delay_seconds"`
	MaxDelaySeconds float64 `yaml:"max_delay_seconds"`

	// Search visits move faster than connects and messages
	SearchDelayScale float64 `yaml:"search_delay_scale"`

	// Keystroke timing bounds in milliseconds
	TypingDelayMinMs  int     `yaml:"typing_delay_min_ms"`
	TypingDelayMaxMs  int     `yaml:"typing_delay_max_ms"`
	TypingPauseChance float64 `yaml:"typing_pause_chance"`

	// Pointer path settings
	PointerJitterPx  float64 `yaml:"pointer_jitter_px"`
	PointerOvershoot bool    `yaml:"pointer_overshoot"`
}

// RateLimitConfig holds the daily caps per action kind.
// A cap of zero means the action kind is unlimited.
type RateLimitConfig struct {
	DailyConnectionLimit int `yaml:"daily_connection_limit"`
	DailyMessageLimit    int `yaml:"daily_message_limit"`
	DailySearchVisits    int `yaml:"daily_search_visits"`
}

// MessagingConfig holds note and follow-up message templates
type MessagingConfig struct {
	ConnectionNoteTemplate  string `yaml:"connection_note_template"`
	FollowUpMessageTemplate string `yaml:"follow_up_message_template"`
	MaxNoteLength           int    `yaml:"max_note_length"`
	MaxMessageLength        int    `yaml:"max_message_length"`
}

// CampaignConfig holds per-run settings
type CampaignConfig struct {
	DryRun     bool `yaml:"dry_run"`
	StartPage  int  `yaml:"start_page"`
	MaxTargets int  `yaml:"max_targets"`
}

// StorageConfig holds ledger persistence settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	CookiesPath  string `yaml:"cookies_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LinkedIn: CredentialsConfig{},
		Browser: BrowserConfig{
			Headless:       false,
			UserDataDir:    "./data/browser",
			Timeout:        30,
			ViewportWidth:  1366,
			ViewportHeight: 768,
		},
		Humanize: HumanizeConfig{
			MinDelaySeconds:   3.0,
			MaxDelaySeconds:   9.0,
			SearchDelayScale:  0.5,
			TypingDelayMinMs:  60,
			TypingDelayMaxMs:  220,
			TypingPauseChance: 0.05,
			PointerJitterPx:   2.5,
			PointerOvershoot:  true,
		},
		RateLimits: RateLimitConfig{
			DailyConnectionLimit: 25,
			DailyMessageLimit:    50,
			DailySearchVisits:    100,
		},
		Messaging: MessagingConfig{
			ConnectionNoteTemplate:  "Hi {{.FirstName}}, I came across your profile and would love to connect!",
			FollowUpMessageTemplate: "Thanks for connecting, {{.FirstName}}! I'd love to learn more about your work at {{.Company}}.",
			MaxNoteLength:           300,
			MaxMessageLength:        8000,
		},
		Campaign: CampaignConfig{
			DryRun:     false,
			StartPage:  1,
			MaxTargets: 25,
		},
		Storage: StorageConfig{
			DatabasePath: "./data/campaign_ledger.db",
			CookiesPath:  "./data/cookies.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputFile: "./logs/engine.log",
		},
	}
}

// LoadConfig loads configuration from a YAML file and applies environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	if email := os.Getenv("LINKEDIN_EMAIL"); email != "" {
		c.LinkedIn.Email = email
	}
	if password := os.Getenv("LINKEDIN_PASSWORD"); password != "" {
		c.LinkedIn.Password = password
	}

	if headless := os.Getenv("BROWSER_HEADLESS"); headless != "" {
		c.Browser.Headless = headless == "true" || headless == "1"
	}
	if dryRun := os.Getenv("DRY_RUN"); dryRun != "" {
		c.Campaign.DryRun = dryRun == "true" || dryRun == "1"
	}

	if maxConn := os.Getenv("DAILY_CONNECTION_LIMIT"); maxConn != "" {
		if val, err := strconv.Atoi(maxConn); err == nil {
			c.RateLimits.DailyConnectionLimit = val
		}
	}
	if maxMsg := os.Getenv("DAILY_MESSAGE_LIMIT"); maxMsg != "" {
		if val, err := strconv.Atoi(maxMsg); err == nil {
			c.RateLimits.DailyMessageLimit = val
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.LinkedIn.Email == "" {
		return fmt.Errorf("account email is required (set LINKEDIN_EMAIL env var or in config)")
	}
	if c.LinkedIn.Password == "" {
		return fmt.Errorf("account password is required (set LINKEDIN_PASSWORD env var or in config)")
	}

	if c.RateLimits.DailyConnectionLimit < 0 || c.RateLimits.DailyConnectionLimit > 100 {
		return fmt.Errorf("daily_connection_limit must be between 0 and 100")
	}
	if c.RateLimits.DailyMessageLimit < 0 || c.RateLimits.DailyMessageLimit > 150 {
		return fmt.Errorf("daily_message_limit must be between 0 and 150")
	}

	if c.Humanize.MinDelaySeconds < 0 {
		return fmt.Errorf("min_delay_seconds must not be negative")
	}
	if c.Humanize.MaxDelaySeconds < c.Humanize.MinDelaySeconds {
		return fmt.Errorf("max_delay_seconds must be >= min_delay_seconds")
	}
	if c.Humanize.TypingDelayMaxMs < c.Humanize.TypingDelayMinMs {
		return fmt.Errorf("typing_delay_max_ms must be >= typing_delay_min_ms")
	}

	if c.Campaign.StartPage < 1 {
		return fmt.Errorf("start_page must be >= 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the configured browser timeout as a time.Duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Browser.Timeout) * time.Second
}

// SaveConfig saves the current configuration to a YAML file
func (c *Config) SaveConfig(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
