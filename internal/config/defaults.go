package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:             "info",
			Channel:              "terminal",
			Workers:              8,
			QueueSize:            64,
			ShutdownGraceSeconds: 10,
			ExpiresInSeconds:     3600,
			HotReload:            false,
			StaleWindowSeconds:   60,
			GroupLogDir:          filepath.Join(DefaultConfigDir(), "grouplogs"),
			SendRatePerMinute:    30,
			SendBurst:            5,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				ParseMode: "Markdown",
			},
		},
		Pipeline: PipelineConfig{
			Mode: "command",
			Backend: BackendConfig{
				BaseURL:        "http://localhost:11434",
				Model:          "llama3.1:8b",
				TimeoutSeconds: 120,
			},
		},
		Publish: PublishConfig{
			Enabled:      false,
			Host:         "127.0.0.1",
			Port:         8080,
			RosterDBPath: filepath.Join(DefaultConfigDir(), "roster.db"),
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
