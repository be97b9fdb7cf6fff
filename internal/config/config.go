package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for chatgate.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Channels ChannelsConfig `yaml:"channels"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Publish  PublishConfig  `yaml:"publish"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"`
	Channel  string `yaml:"channel"` // active adapter: telegram | slack | discord | terminal

	// Dispatch engine tuning.
	Workers              int `yaml:"workers"`
	QueueSize            int `yaml:"queueSize"`
	ShutdownGraceSeconds int `yaml:"shutdownGraceSeconds"`

	// Dedup and replay suppression.
	ExpiresInSeconds   int  `yaml:"expiresInSeconds"`   // dedup TTL
	HotReload          bool `yaml:"hotReload"`          // session resume; enables staleness suppression
	StaleWindowSeconds int  `yaml:"staleWindowSeconds"` // history replay window

	// Optional capabilities, toggled independently per chat kind.
	SpeechRecognition      bool `yaml:"speechRecognition"`
	GroupSpeechRecognition bool `yaml:"groupSpeechRecognition"`

	// Group chat logging.
	GroupLogDir string `yaml:"groupLogDir"`

	// Outbound send throttle, per adapter.
	SendRatePerMinute int `yaml:"sendRatePerMinute"`
	SendBurst         int `yaml:"sendBurst"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
}

type TelegramConfig struct {
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allowFrom"` // user IDs; empty = allow all
	ParseMode string   `yaml:"parseMode"`
}

type SlackConfig struct {
	BotToken string `yaml:"botToken"`
	AppToken string `yaml:"appToken"` // required for Socket Mode
}

type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guildId"` // optional: restrict to one guild
}

type PipelineConfig struct {
	Mode    string        `yaml:"mode"` // "command" | "backend"
	Backend BackendConfig `yaml:"backend"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type PublishConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Token        string `yaml:"token"`  // bearer token; empty disables auth
	Secret       string `yaml:"secret"` // HMAC body signature secret; empty disables
	RosterDBPath string `yaml:"rosterDbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfigDir returns ~/.chatgate.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatgate"
	}
	return filepath.Join(home, ".chatgate")
}

// DefaultConfigPath returns ~/.chatgate/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	switch c.General.Channel {
	case "telegram", "slack", "discord", "terminal":
	default:
		return fmt.Errorf("general.channel: unknown adapter %q", c.General.Channel)
	}
	if c.General.Workers < 1 || c.General.Workers > 256 {
		return fmt.Errorf("general.workers must be in [1,256], got %d", c.General.Workers)
	}
	if c.General.QueueSize < 1 {
		return fmt.Errorf("general.queueSize must be positive, got %d", c.General.QueueSize)
	}
	if c.General.ExpiresInSeconds < 1 {
		return fmt.Errorf("general.expiresInSeconds must be positive, got %d", c.General.ExpiresInSeconds)
	}
	if c.General.StaleWindowSeconds < 1 {
		return fmt.Errorf("general.staleWindowSeconds must be positive, got %d", c.General.StaleWindowSeconds)
	}
	if c.Publish.Enabled && (c.Publish.Port < 1 || c.Publish.Port > 65535) {
		return fmt.Errorf("publish.port out of range: %d", c.Publish.Port)
	}
	switch c.Pipeline.Mode {
	case "command", "backend":
	default:
		return fmt.Errorf("pipeline.mode: unknown mode %q", c.Pipeline.Mode)
	}
	return nil
}

// Sanitize returns a copy with secrets blanked, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.Channels.Telegram.Token != "" {
		out.Channels.Telegram.Token = "***"
	}
	if out.Channels.Slack.BotToken != "" {
		out.Channels.Slack.BotToken = "***"
	}
	if out.Channels.Slack.AppToken != "" {
		out.Channels.Slack.AppToken = "***"
	}
	if out.Channels.Discord.Token != "" {
		out.Channels.Discord.Token = "***"
	}
	if out.Publish.Token != "" {
		out.Publish.Token = "***"
	}
	if out.Publish.Secret != "" {
		out.Publish.Secret = "***"
	}
	return &out
}
