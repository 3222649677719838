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
	"topicsync/pkg/target"
)

// Checkpoint failure policies.
const (
	OnFailureAdvance = "advance"
	OnFailureHold    = "hold"
)

// Config holds every setting a topicsync run needs.
type Config struct {
	// Remote store connection
	Remote RemoteConfig `yaml:"remote" json:"remote"`

	// CSV input settings
	Input InputConfig `yaml:"input" json:"input"`

	// Checkpoint file settings
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Table and column to update
	Target TargetConfig `yaml:"target" json:"target"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RemoteConfig holds the Supabase project connection settings
type RemoteConfig struct {
	URL               string        `yaml:"url" json:"url"`
	APIKey            string        `yaml:"api_key" json:"api_key"`
	Project           string        `yaml:"project" json:"project"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// InputConfig describes the CSV file
type InputConfig struct {
	Path        string `yaml:"path" json:"path"`
	IDColumn    string `yaml:"id_column" json:"id_column"`
	ValueColumn string `yaml:"value_column" json:"value_column"`
}

// CheckpointConfig describes where and how progress is recorded
type CheckpointConfig struct {
	Path      string `yaml:"path" json:"path"`
	OnFailure string `yaml:"on_failure" json:"on_failure"`
}

// TargetConfig names the table and column to update
type TargetConfig struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column" json:"column"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	Format  string `yaml:"format" json:"format"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			Timeout:           30 * time.Second,
			MaxAttempts:       1,
			RequestsPerMinute: 0, // unlimited
		},
		Input: InputConfig{
			IDColumn:    "id",
			ValueColumn: "topics_list",
		},
		Checkpoint: CheckpointConfig{
			OnFailure: OnFailureAdvance,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	// SUPABASE_URL and SUPABASE_KEY are the names used by existing .env files.
	if url := firstEnv("TOPICSYNC_SUPABASE_URL", "SUPABASE_URL"); url != "" {
		c.Remote.URL = url
	}
	if key := firstEnv("TOPICSYNC_SUPABASE_KEY", "SUPABASE_KEY"); key != "" {
		c.Remote.APIKey = key
	}
	if project := os.Getenv("TOPICSYNC_PROJECT"); project != "" {
		c.Remote.Project = project
	}
	if timeout := os.Getenv("TOPICSYNC_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOPICSYNC_TIMEOUT: %w", err))
		} else {
			c.Remote.Timeout = d
		}
	}
	if attempts := os.Getenv("TOPICSYNC_MAX_ATTEMPTS"); attempts != "" {
		n, err := strconv.Atoi(attempts)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOPICSYNC_MAX_ATTEMPTS: %w", err))
		} else {
			c.Remote.MaxAttempts = n
		}
	}
	if rpm := os.Getenv("TOPICSYNC_REQUESTS_PER_MINUTE"); rpm != "" {
		n, err := strconv.Atoi(rpm)
		if err != nil {
			errs = append(errs, fmt.Errorf("TOPICSYNC_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.Remote.RequestsPerMinute = n
		}
	}

	if col := os.Getenv("TOPICSYNC_ID_COLUMN"); col != "" {
		c.Input.IDColumn = col
	}
	if col := os.Getenv("TOPICSYNC_VALUE_COLUMN"); col != "" {
		c.Input.ValueColumn = col
	}
	if policy := os.Getenv("TOPICSYNC_CHECKPOINT_ON_FAILURE"); policy != "" {
		c.Checkpoint.OnFailure = strings.ToLower(policy)
	}

	if logLevel := os.Getenv("TOPICSYNC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("TOPICSYNC_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}
	if format := os.Getenv("TOPICSYNC_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	return errors.Join(errs...)
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".topicsync.yaml",
		".topicsync.yml",
	}
	if home != "" {
		locations = append(locations,
			filepath.Join(home, ".config", "topicsync", "config.yaml"),
			filepath.Join(home, ".config", "topicsync", "config.yml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks the settings that must hold for any command.
func (c *Config) Validate() error {
	var errs []error

	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote timeout must be positive"))
	}
	if c.Remote.MaxAttempts < 1 {
		errs = append(errs, errors.New("remote max attempts must be at least 1"))
	}
	if c.Remote.MaxAttempts > 10 {
		errs = append(errs, errors.New("remote max attempts should not exceed 10"))
	}
	if c.Remote.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if strings.TrimSpace(c.Input.IDColumn) == "" {
		errs = append(errs, errors.New("input id column is required"))
	}
	if strings.TrimSpace(c.Input.ValueColumn) == "" {
		errs = append(errs, errors.New("input value column is required"))
	}
	if c.Input.IDColumn != "" && c.Input.IDColumn == c.Input.ValueColumn {
		errs = append(errs, errors.New("input id and value columns must differ"))
	}

	switch c.Checkpoint.OnFailure {
	case OnFailureAdvance, OnFailureHold:
	default:
		errs = append(errs, fmt.Errorf("invalid checkpoint on_failure policy %q (valid: %s, %s)",
			c.Checkpoint.OnFailure, OnFailureAdvance, OnFailureHold))
	}

	if c.Target.Table != "" || c.Target.Column != "" {
		if _, err := c.ResolveTarget(); err != nil {
			errs = append(errs, err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("invalid log format"))
	}

	return errors.Join(errs...)
}

// ValidateRun checks everything an update run needs on top of Validate.
func (c *Config) ValidateRun() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Input.Path == "" {
		errs = append(errs, errors.New("input CSV path is required"))
	}
	if c.Checkpoint.Path == "" {
		errs = append(errs, errors.New("checkpoint path is required"))
	}
	if c.Target.Table == "" || c.Target.Column == "" {
		errs = append(errs, errors.New("target table and column are required"))
	}
	if c.Remote.URL == "" {
		errs = append(errs, errors.New("Supabase URL is required"))
	} else if !strings.HasPrefix(c.Remote.URL, "http://") && !strings.HasPrefix(c.Remote.URL, "https://") {
		errs = append(errs, fmt.Errorf("Supabase URL must start with http:// or https://, got %q", c.Remote.URL))
	}
	if c.Remote.APIKey == "" {
		errs = append(errs, errors.New("Supabase API key is required"))
	}

	return errors.Join(errs...)
}

// ResolveTarget validates the configured table/column pair.
func (c *Config) ResolveTarget() (target.Target, error) {
	return target.Parse(c.Target.Table, c.Target.Column)
}

// HoldCheckpointOnFailure reports whether the hold policy is selected.
func (c *Config) HoldCheckpointOnFailure() bool {
	return c.Checkpoint.OnFailure == OnFailureHold
}

// Masked returns a copy that is safe to print.
func (c *Config) Masked() *Config {
	masked := *c
	masked.Remote.APIKey = MaskSecret(c.Remote.APIKey)
	return &masked
}

// MaskSecret masks all but the first 4 and last 4 characters of a string
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 12 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
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

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map override; zero values are never passed in.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["input"].(string); ok && v != "" {
		c.Input.Path = v
	}
	if v, ok := flags["checkpoint"].(string); ok && v != "" {
		c.Checkpoint.Path = v
	}
	if v, ok := flags["table"].(string); ok && v != "" {
		c.Target.Table = v
	}
	if v, ok := flags["column"].(string); ok && v != "" {
		c.Target.Column = v
	}
	if v, ok := flags["supabase-url"].(string); ok && v != "" {
		c.Remote.URL = v
	}
	if v, ok := flags["supabase-key"].(string); ok && v != "" {
		c.Remote.APIKey = v
	}
	if v, ok := flags["project"].(string); ok && v != "" {
		c.Remote.Project = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.Remote.Timeout = v
	}
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.Remote.MaxAttempts = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v >= 0 {
		c.Remote.RequestsPerMinute = v
	}
	if v, ok := flags["id-column"].(string); ok && v != "" {
		c.Input.IDColumn = v
	}
	if v, ok := flags["value-column"].(string); ok && v != "" {
		c.Input.ValueColumn = v
	}
	if v, ok := flags["hold-on-failure"].(bool); ok && v {
		c.Checkpoint.OnFailure = OnFailureHold
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
	if v, ok := flags["log-format"].(string); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Logging.NoColor = true
	}
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".topicsync.env"))
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	LoadDotEnv()

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
