package config

import (
	"path/filepath"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_UnknownChannel(t *testing.T) {
	cfg := Defaults()
	cfg.General.Channel = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown channel should fail validation")
	}
}

func TestValidate_WorkerBounds(t *testing.T) {
	tests := []struct {
		workers int
		ok      bool
	}{
		{0, false},
		{1, true},
		{8, true},
		{256, true},
		{257, false},
	}
	for _, tt := range tests {
		cfg := Defaults()
		cfg.General.Workers = tt.workers
		err := cfg.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("workers=%d: err=%v, want ok=%v", tt.workers, err, tt.ok)
		}
	}
}

func TestValidate_PublishPort(t *testing.T) {
	cfg := Defaults()
	cfg.Publish.Enabled = true
	cfg.Publish.Port = 99999
	if err := cfg.Validate(); err == nil {
		t.Error("out-of-range publish port should fail validation")
	}
}

func TestValidate_PipelineMode(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline.Mode = "quantum"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown pipeline mode should fail validation")
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Defaults()
	cfg.General.Channel = "telegram"
	cfg.Channels.Telegram.Token = "123:abc"
	cfg.General.ExpiresInSeconds = 7200

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.General.Channel != "telegram" {
		t.Errorf("channel = %q, want telegram", loaded.General.Channel)
	}
	if loaded.Channels.Telegram.Token != "123:abc" {
		t.Errorf("token not preserved: %q", loaded.Channels.Telegram.Token)
	}
	if loaded.General.ExpiresInSeconds != 7200 {
		t.Errorf("expiresInSeconds = %d, want 7200", loaded.General.ExpiresInSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should return an error")
	}
}

func TestSanitize_BlanksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "secret"
	cfg.Channels.Slack.BotToken = "xoxb"
	cfg.Publish.Token = "bearer"

	s := Sanitize(cfg)
	if s.Channels.Telegram.Token != "***" || s.Channels.Slack.BotToken != "***" || s.Publish.Token != "***" {
		t.Error("secrets not blanked")
	}
	if cfg.Channels.Telegram.Token != "secret" {
		t.Error("sanitize must not mutate the original")
	}
}
