package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
server:
  host: 0.0.0.0
  port: 9090

gemini:
  api_key_env: ATLAS_TEST_KEY
  base_url: http://localhost:4000
  model: gemini-test
  image_model: gemini-test-image
  timeout: 30s
  requests_per_second: 5
  max_retries: -1
  disable_images: true

game:
  prompt_delay: 250ms
  call_timeout: 45s
  max_upload_bytes: 1048576

database:
  driver: mysql
  host: db.internal
  port: 3307
  database: atlas_prod
  user: atlas
  password_env: ATLAS_TEST_DB_PASSWORD

calllog:
  retention_days: 7
  prune_schedule: "*/30 * * * *"

telemetry:
  enabled: true
  endpoint: http://otel:4318
  insecure: true

mirror:
  slack:
    channel: C0123
  discord:
    channel: "998877"
    bot_token_env: ATLAS_DISCORD
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	g := cfg.Gemini
	if g.APIKeyEnv != "ATLAS_TEST_KEY" || g.BaseURL != "http://localhost:4000" || g.Model != "gemini-test" || g.ImageModel != "gemini-test-image" {
		t.Errorf("Gemini = %+v", g)
	}
	if g.Timeout != 30*time.Second {
		t.Errorf("Gemini.Timeout = %v, want 30s", g.Timeout)
	}
	if g.RequestsPerSecond != 5 || g.MaxRetries != -1 || !g.DisableImages {
		t.Errorf("Gemini = %+v", g)
	}
	if cfg.Game.PromptDelay != 250*time.Millisecond || cfg.Game.CallTimeout != 45*time.Second || cfg.Game.MaxUploadBytes != 1<<20 {
		t.Errorf("Game = %+v", cfg.Game)
	}
	d := cfg.Database
	if d.Driver != DriverMySQL || d.Host != "db.internal" || d.Port != 3307 || d.Database != "atlas_prod" || d.User != "atlas" {
		t.Errorf("Database = %+v", d)
	}
	if d.Path != "" {
		t.Errorf("Database.Path = %q, want empty for mysql", d.Path)
	}
	if cfg.CallLog.RetentionDays != 7 || cfg.CallLog.PruneSchedule != "*/30 * * * *" {
		t.Errorf("CallLog = %+v", cfg.CallLog)
	}
	if cfg.CallLog.Retention() != 7*24*time.Hour {
		t.Errorf("Retention() = %v", cfg.CallLog.Retention())
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "http://otel:4318" || !cfg.Telemetry.Insecure {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if !cfg.Mirror.Slack.Enabled() || cfg.Mirror.Slack.BotTokenEnv != "SLACK_BOT_TOKEN" {
		t.Errorf("Mirror.Slack = %+v", cfg.Mirror.Slack)
	}
	if cfg.Mirror.Discord.Channel != "998877" || cfg.Mirror.Discord.BotTokenEnv != "ATLAS_DISCORD" {
		t.Errorf("Mirror.Discord = %+v", cfg.Mirror.Discord)
	}
}

func TestParse_Empty_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8080 {
		t.Errorf("Server = %+v (defaults)", cfg.Server)
	}
	if cfg.Gemini.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("Gemini.APIKeyEnv = %q", cfg.Gemini.APIKeyEnv)
	}
	if cfg.Gemini.MaxRetries != 3 || cfg.Gemini.RequestsPerSecond != 2 || cfg.Gemini.Timeout != time.Minute {
		t.Errorf("Gemini = %+v (defaults)", cfg.Gemini)
	}
	if cfg.Game.PromptDelay != time.Second || cfg.Game.CallTimeout != 2*time.Minute || cfg.Game.MaxUploadBytes != 10<<20 {
		t.Errorf("Game = %+v (defaults)", cfg.Game)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.Path != "atlas.db" || !cfg.Database.Enabled() {
		t.Errorf("Database = %+v (defaults)", cfg.Database)
	}
	if cfg.CallLog.RetentionDays != 30 || cfg.CallLog.PruneSchedule != "0 3 * * *" {
		t.Errorf("CallLog = %+v (defaults)", cfg.CallLog)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should default to disabled")
	}
	if cfg.Mirror.Slack.Enabled() || cfg.Mirror.Discord.Enabled() {
		t.Error("mirrors should default to disabled")
	}
	if cfg.Mirror.Discord.BotTokenEnv != "DISCORD_BOT_TOKEN" {
		t.Errorf("Discord.BotTokenEnv = %q", cfg.Mirror.Discord.BotTokenEnv)
	}
}

func TestDefault_MatchesEmptyParse(t *testing.T) {
	parsed, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if *Default() != *parsed {
		t.Errorf("Default() = %+v\nParse(nil) = %+v", Default(), parsed)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := cfg.Database
	if d.Host != "127.0.0.1" || d.Port != 3306 || d.Database != "atlas" || d.User != "root" {
		t.Errorf("Database = %+v (mysql defaults)", d)
	}
}

func TestParse_DriverNone(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: none\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Enabled() {
		t.Error("driver none should disable the call log")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"port range", "server:\n  port: 70000\n", "server.port"},
		{"bad driver", "database:\n  driver: postgres\n", "database.driver"},
		{"negative delay", "game:\n  prompt_delay: -1s\n", "game.prompt_delay"},
		{"negative timeout", "game:\n  call_timeout: -5s\n", "game.call_timeout"},
		{"negative upload", "game:\n  max_upload_bytes: -1\n", "game.max_upload_bytes"},
		{"negative rps", "gemini:\n  requests_per_second: -1\n", "gemini.requests_per_second"},
		{"negative retention", "calllog:\n  retention_days: -2\n", "calllog.retention_days"},
		{"bad schedule", "calllog:\n  prune_schedule: \"every day\"\n", "calllog.prune_schedule"},
		{"six-field schedule", "calllog:\n  prune_schedule: \"0 0 3 * * *\"\n", "calllog.prune_schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	_, err := Parse([]byte("server:\n  port: -1\ndatabase:\n  driver: oracle\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server.port") || !strings.Contains(msg, "database.driver") {
		t.Errorf("error should collect all problems: %s", msg)
	}
	if !strings.HasPrefix(msg, "config: validation failed:") {
		t.Errorf("error prefix = %q", msg)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q", err)
	}
}

func TestEnvBackedSecrets(t *testing.T) {
	t.Setenv("ATLAS_TEST_KEY", "key-123")
	t.Setenv("ATLAS_TEST_DB_PASSWORD", "pw")
	t.Setenv("ATLAS_DISCORD", "bot-token")

	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Gemini.APIKey(); got != "key-123" {
		t.Errorf("APIKey() = %q", got)
	}
	if got := cfg.Database.Password(); got != "pw" {
		t.Errorf("Password() = %q", got)
	}
	if got := cfg.Mirror.Discord.BotToken(); got != "bot-token" {
		t.Errorf("BotToken() = %q", got)
	}
	if got := (DatabaseConfig{}).Password(); got != "" {
		t.Errorf("Password() without env = %q", got)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/atlas.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_Fixtures(t *testing.T) {
	tests := []struct {
		file    string
		wantErr bool
	}{
		{"testdata/valid_full.yaml", false},
		{"testdata/valid_minimal.yaml", false},
		{"testdata/bad_driver.yaml", true},
		{"testdata/invalid.yaml", true},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.file), func(t *testing.T) {
			_, err := Load(tt.file)
			if (err != nil) != tt.wantErr {
				t.Errorf("Load(%s) err = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
		})
	}
}
