// Package config provides YAML-based configuration loading for Atlas.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "atlas.yaml"

// Database drivers accepted in DatabaseConfig.Driver.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverNone   = "none"
)

// Config is the top-level Atlas configuration, loaded from atlas.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Game      GameConfig      `yaml:"game"`
	Database  DatabaseConfig  `yaml:"database"`
	CallLog   CallLogConfig   `yaml:"calllog"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Mirror    MirrorConfig    `yaml:"mirror"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GeminiConfig holds inference gateway settings. The API key itself is read
// from the environment variable named by APIKeyEnv.
type GeminiConfig struct {
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	ImageModel        string        `yaml:"image_model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"` // negative disables retries
	DisableImages     bool          `yaml:"disable_images"`
}

// APIKey returns the key from the configured environment variable.
func (g GeminiConfig) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}

// GameConfig tunes the state machine and upload limits.
type GameConfig struct {
	PromptDelay    time.Duration `yaml:"prompt_delay"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig locates the inference call log. Driver "none" disables it.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
}

// Enabled reports whether a call-log database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Driver != DriverNone
}

// Password returns the MySQL password from the configured environment variable.
func (d DatabaseConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// CallLogConfig controls retention of the inference call log.
type CallLogConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// Retention returns RetentionDays as a duration.
func (c CallLogConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// MirrorConfig lists the chat channels the conversation is echoed to.
type MirrorConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is one mirror target. It is active when Channel is set.
type ChatConfig struct {
	Channel     string `yaml:"channel"`
	BotTokenEnv string `yaml:"bot_token_env"`
}

// Enabled reports whether the target has a channel.
func (c ChatConfig) Enabled() bool {
	return c.Channel != ""
}

// BotToken returns the token from the configured environment variable.
func (c ChatConfig) BotToken() string {
	return os.Getenv(c.BotTokenEnv)
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Gemini.APIKeyEnv == "" {
		c.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Gemini.Timeout == 0 {
		c.Gemini.Timeout = 60 * time.Second
	}
	if c.Gemini.RequestsPerSecond == 0 {
		c.Gemini.RequestsPerSecond = 2
	}
	if c.Gemini.MaxRetries == 0 {
		c.Gemini.MaxRetries = 3
	}

	if c.Game.PromptDelay == 0 {
		c.Game.PromptDelay = time.Second
	}
	if c.Game.CallTimeout == 0 {
		c.Game.CallTimeout = 2 * time.Minute
	}
	if c.Game.MaxUploadBytes == 0 {
		c.Game.MaxUploadBytes = 10 << 20
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			c.Database.Path = "atlas.db"
		}
	case DriverMySQL:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Database == "" {
			c.Database.Database = "atlas"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}

	if c.CallLog.RetentionDays == 0 {
		c.CallLog.RetentionDays = 30
	}
	if c.CallLog.PruneSchedule == "" {
		c.CallLog.PruneSchedule = "0 3 * * *"
	}

	if c.Mirror.Slack.BotTokenEnv == "" {
		c.Mirror.Slack.BotTokenEnv = "SLACK_BOT_TOKEN"
	}
	if c.Mirror.Discord.BotTokenEnv == "" {
		c.Mirror.Discord.BotTokenEnv = "DISCORD_BOT_TOKEN"
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validate checks that all fields are in range and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Gemini.Timeout < 0 {
		errs = append(errs, "gemini.timeout must not be negative")
	}
	if c.Gemini.RequestsPerSecond < 0 {
		errs = append(errs, "gemini.requests_per_second must not be negative")
	}
	if c.Game.PromptDelay < 0 {
		errs = append(errs, "game.prompt_delay must not be negative")
	}
	if c.Game.CallTimeout < 0 {
		errs = append(errs, "game.call_timeout must not be negative")
	}
	if c.Game.MaxUploadBytes < 0 {
		errs = append(errs, "game.max_upload_bytes must not be negative")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverNone:
	case DriverMySQL:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port %d out of range", c.Database.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be one of sqlite, mysql, none", c.Database.Driver))
	}
	if c.CallLog.RetentionDays < 0 {
		errs = append(errs, "calllog.retention_days must not be negative")
	}
	if _, err := cronParser.Parse(c.CallLog.PruneSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("calllog.prune_schedule %q: %v", c.CallLog.PruneSchedule, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
