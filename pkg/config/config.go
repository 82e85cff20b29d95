package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "instabridge/pkg/errors"
)

// DefaultMessagePrefix opens every relayed caption
const DefaultMessagePrefix = "New from Instagram:"

// DefaultReportContact receives unfollow alerts when nothing else is configured
const DefaultReportContact = "Notes"

// Config holds all configuration options for the relay
type Config struct {
	// Instagram account the content is fetched from
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// WhatsApp bridge and default contacts
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`

	// On-disk locations of state, settings and media
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Scheduler defaults
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// Dashboard HTTP server
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	Username string `yaml:"username" json:"username"`
	// Password is never written back to disk by Save.
	Password         string        `yaml:"password,omitempty" json:"-"`
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	UserAgent        string        `yaml:"user_agent" json:"user_agent"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	RateProfile      string        `yaml:"rate_profile" json:"rate_profile"`
	MaxPostsSince    int           `yaml:"max_posts_since" json:"max_posts_since"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	MaxRateLimitWait time.Duration `yaml:"max_rate_limit_wait" json:"max_rate_limit_wait"`
}

// WhatsAppConfig holds the delivery channel configuration
type WhatsAppConfig struct {
	BridgeURL          string        `yaml:"bridge_url" json:"bridge_url"`
	ContentContactName string        `yaml:"content_contact_name" json:"content_contact_name"`
	ContentPhone       string        `yaml:"content_phone" json:"content_phone"`
	ReportContactName  string        `yaml:"report_contact_name" json:"report_contact_name"`
	ReportPhone        string        `yaml:"report_phone" json:"report_phone"`
	MessagePrefix      string        `yaml:"message_prefix" json:"message_prefix"`
	RequestTimeout     time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// PathsConfig holds file locations. Relative paths resolve against DataDir.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	MediaDir     string `yaml:"media_dir" json:"media_dir"`
	StateFile    string `yaml:"state_file" json:"state_file"`
	SettingsFile string `yaml:"settings_file" json:"settings_file"`
	UnfollowFile string `yaml:"unfollow_file" json:"unfollow_file"`
}

// ScheduleConfig holds scheduler defaults
type ScheduleConfig struct {
	DefaultTZ       string        `yaml:"default_tz" json:"default_tz"`
	DefaultTime     string        `yaml:"default_time" json:"default_time"`
	FailureBackoff  time.Duration `yaml:"failure_backoff" json:"failure_backoff"`
	UnfollowWeekday string        `yaml:"unfollow_weekday" json:"unfollow_weekday"`
	UnfollowTime    string        `yaml:"unfollow_time" json:"unfollow_time"`
}

// DashboardConfig holds the settings API server configuration
type DashboardConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			BaseURL:          "https://i.instagram.com",
			UserAgent:        "Instagram 309.1.0.41.113 Android (31/12; 420dpi; 1080x2340; samsung; SM-G991B; o1s; exynos2100; en_US; 541635863)",
			Timeout:          30 * time.Second,
			RateProfile:      "moderate",
			MaxPostsSince:    12,
			MaxRetries:       3,
			MaxRateLimitWait: 2 * time.Minute,
		},
		WhatsApp: WhatsAppConfig{
			BridgeURL:      "http://127.0.0.1:3001",
			MessagePrefix:  DefaultMessagePrefix,
			RequestTimeout: 2 * time.Minute,
		},
		Paths: PathsConfig{
			DataDir:      ".",
			MediaDir:     "media",
			StateFile:    "state.json",
			SettingsFile: "settings.json",
			UnfollowFile: "unfollow_state.json",
		},
		Schedule: ScheduleConfig{
			DefaultTZ:       "Europe/Berlin",
			DefaultTime:     "19:00",
			FailureBackoff:  60 * time.Second,
			UnfollowWeekday: "sunday",
			UnfollowTime:    "22:00",
		},
		Dashboard: DashboardConfig{
			Listen: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// The short IG_/WA_ names are the primary ones; INSTABRIDGE_* covers operational fields.
func (c *Config) LoadFromEnv() error {
	setString(&c.Instagram.Username, "IG_USERNAME")
	setString(&c.Instagram.Password, "IG_PASSWORD")
	setString(&c.Instagram.RateProfile, "INSTABRIDGE_RATE_PROFILE")
	setString(&c.Instagram.BaseURL, "INSTABRIDGE_INSTAGRAM_URL")

	// Legacy single-contact variables only fill what the new ones leave empty
	legacyName := strings.TrimSpace(os.Getenv("WA_CONTACT_NAME"))
	legacyPhone := strings.TrimSpace(os.Getenv("WA_PHONE"))

	setString(&c.WhatsApp.ContentContactName, "WA_CONTENT_CONTACT_NAME")
	setString(&c.WhatsApp.ContentPhone, "WA_CONTENT_PHONE")
	setString(&c.WhatsApp.ReportContactName, "WA_REPORT_CONTACT_NAME")
	setString(&c.WhatsApp.ReportPhone, "WA_REPORT_PHONE")
	setString(&c.WhatsApp.MessagePrefix, "MESSAGE_PREFIX")
	setString(&c.WhatsApp.BridgeURL, "INSTABRIDGE_BRIDGE_URL")

	if c.WhatsApp.ContentContactName == "" {
		c.WhatsApp.ContentContactName = legacyName
	}
	if c.WhatsApp.ContentPhone == "" {
		c.WhatsApp.ContentPhone = legacyPhone
	}
	if c.WhatsApp.ReportContactName == "" {
		c.WhatsApp.ReportContactName = legacyName
	}
	if c.WhatsApp.ReportContactName == "" {
		c.WhatsApp.ReportContactName = DefaultReportContact
	}

	setString(&c.Paths.DataDir, "INSTABRIDGE_DATA_DIR")
	setString(&c.Paths.MediaDir, "INSTABRIDGE_MEDIA_DIR")
	setString(&c.Dashboard.Listen, "INSTABRIDGE_LISTEN")
	setString(&c.Logging.Level, "INSTABRIDGE_LOG_LEVEL")
	setString(&c.Logging.File, "INSTABRIDGE_LOG_FILE")

	if v := os.Getenv("INSTABRIDGE_MAX_POSTS_SINCE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INSTABRIDGE_MAX_POSTS_SINCE: %w", err)
		}
		c.Instagram.MaxPostsSince = n
	}
	if v := os.Getenv("INSTABRIDGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INSTABRIDGE_TIMEOUT: %w", err)
		}
		c.Instagram.Timeout = d
	}

	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".instabridge.yaml",
		".instabridge.yml",
		filepath.Join(home, ".config", "instabridge", "config.yaml"),
		filepath.Join(home, ".config", "instabridge", "config.yml"),
		filepath.Join(home, ".instabridge.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Missing credentials or
// contacts come back as configuration errors carrying remediation text.
func (c *Config) Validate() error {
	var problems []error

	if c.Instagram.Username == "" {
		problems = append(problems, errs.Configuration("Instagram username is required",
			"set IG_USERNAME in .env or run `instabridge auth login`"))
	}
	if c.Instagram.Password == "" {
		problems = append(problems, errs.Configuration("Instagram password is required",
			"set IG_PASSWORD in .env or store it in the keychain with `instabridge auth login`"))
	}
	problems = append(problems, c.deliveryProblems()...)

	if c.Instagram.Timeout <= 0 {
		problems = append(problems, errors.New("instagram timeout must be positive"))
	}
	if c.Instagram.MaxPostsSince <= 0 {
		problems = append(problems, errors.New("max posts since must be positive"))
	}
	if c.Instagram.MaxRetries < 0 {
		problems = append(problems, errors.New("max retries cannot be negative"))
	}
	validProfiles := map[string]bool{
		"conservative": true, "moderate": true, "aggressive": true, "analytics": true,
	}
	if !validProfiles[strings.ToLower(c.Instagram.RateProfile)] {
		problems = append(problems, fmt.Errorf("invalid rate profile %q", c.Instagram.RateProfile))
	}

	if c.Paths.MediaDir == "" || c.Paths.StateFile == "" || c.Paths.SettingsFile == "" {
		problems = append(problems, errors.New("media dir, state file and settings file are required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, errors.New("invalid log level"))
	}

	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	return nil
}

// ValidateDelivery checks only what sending to the content contact needs.
// Resending an earlier batch never talks to Instagram.
func (c *Config) ValidateDelivery() error {
	return errors.Join(c.deliveryProblems()...)
}

func (c *Config) deliveryProblems() []error {
	var problems []error
	if c.WhatsApp.ContentContactName == "" && c.WhatsApp.ContentPhone == "" {
		problems = append(problems, errs.Configuration("WhatsApp content contact is required",
			"set WA_CONTENT_CONTACT_NAME or WA_CONTENT_PHONE (legacy WA_CONTACT_NAME/WA_PHONE also work)"))
	}
	if c.WhatsApp.BridgeURL == "" {
		problems = append(problems, errors.New("whatsapp bridge URL is required"))
	}
	return problems
}

// Resolve returns p joined onto the data directory unless it is absolute
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.DataDir, p)
}

// StatePath is the resolved delivery state file
func (c *Config) StatePath() string { return c.Resolve(c.Paths.StateFile) }

// SettingsPath is the resolved recipient settings file
func (c *Config) SettingsPath() string { return c.Resolve(c.Paths.SettingsFile) }

// MediaPath is the resolved media download directory
func (c *Config) MediaPath() string { return c.Resolve(c.Paths.MediaDir) }

// UnfollowPath is the resolved follower snapshot file
func (c *Config) UnfollowPath() string { return c.Resolve(c.Paths.UnfollowFile) }

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	out := *c
	out.Instagram.Password = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if username, ok := flags["username"].(string); ok && username != "" {
		c.Instagram.Username = username
	}
	if profile, ok := flags["rate-profile"].(string); ok && profile != "" {
		c.Instagram.RateProfile = profile
	}
	if bridge, ok := flags["bridge"].(string); ok && bridge != "" {
		c.WhatsApp.BridgeURL = bridge
	}
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.Paths.DataDir = dataDir
	}
	if listen, ok := flags["listen"].(string); ok && listen != "" {
		c.Dashboard.Listen = listen
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults.
// Credentials may still be missing afterwards; callers fill them from the
// credential store and then call Validate.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".instabridge.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if config.WhatsApp.MessagePrefix == "" {
		config.WhatsApp.MessagePrefix = DefaultMessagePrefix
	}

	return config, nil
}
