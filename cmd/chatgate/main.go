package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"chatgate/internal/cache"
	"chatgate/internal/channel"
	"chatgate/internal/config"
	"chatgate/internal/dispatch"
	"chatgate/internal/domain"
	"chatgate/internal/pipeline"
	"chatgate/internal/publish"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "chatgate",
		Short: "chatgate: multi-platform chat-bot gateway",
		Long:  "chatgate dispatches inbound chat traffic from Telegram, Slack, Discord or the terminal through a concurrent handling pipeline.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.chatgate/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func applyLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.GroupLogDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "grouplogs", cfg.General.GroupLogDir)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat on the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadOrDefaults()
			cfg.General.Channel = "terminal"
			cfg.Publish.Enabled = false
			return runGatewayWith(cfg)
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the gateway (configured channel + dispatch engine)",
		Long:  "Starts the configured platform channel, the dispatch engine and, when enabled, the publish endpoint. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runGatewayWith(cfg)
		},
	}
}

func runGatewayWith(cfg *config.Config) error {
	applyLogLevel(cfg.General.LogLevel)

	if err := os.MkdirAll(cfg.General.GroupLogDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seen := cache.NewExpiring(time.Duration(cfg.General.ExpiresInSeconds) * time.Second)
	chain := dispatch.NewChain(logger,
		dispatch.Duplicate(seen),
		dispatch.Staleness(cfg.General.HotReload, time.Duration(cfg.General.StaleWindowSeconds)*time.Second, nil),
		dispatch.SelfEcho(),
		dispatch.Capability(dispatch.CapabilityToggles{
			SpeechRecognition:      cfg.General.SpeechRecognition,
			GroupSpeechRecognition: cfg.General.GroupSpeechRecognition,
		}),
	)
	composer := dispatch.NewComposer(dispatch.NewGroupLog(cfg.General.GroupLogDir), logger)

	engine := dispatch.NewEngine(dispatch.EngineConfig{
		Workers:   cfg.General.Workers,
		QueueSize: cfg.General.QueueSize,
		Grace:     time.Duration(cfg.General.ShutdownGraceSeconds) * time.Second,
		Pipeline:  buildPipeline(cfg),
		Chain:     chain,
		Composer:  composer,
		Logger:    logger,
	})

	ch, err := channel.Build(cfg, engine, logger)
	if err != nil {
		return err
	}
	engine.BindChannel(ch)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Startup(gctx)
	})

	var roster *publish.RosterStore
	if cfg.Publish.Enabled {
		roster, err = publish.NewRosterStore(cfg.Publish.RosterDBPath, logger)
		if err != nil {
			return fmt.Errorf("roster store: %w", err)
		}
		defer roster.Close()

		pubSrv := publish.NewServer(publish.ServerConfig{
			Host:            cfg.Publish.Host,
			Port:            cfg.Publish.Port,
			Token:           cfg.Publish.Token,
			Secret:          cfg.Publish.Secret,
			Channel:         ch,
			Roster:          roster,
			Logger:          logger,
			MetricsEnabled:  cfg.Metrics.Enabled,
			MetricsEndpoint: cfg.Metrics.Endpoint,
		})
		g.Go(func() error {
			return pubSrv.Start(gctx)
		})
	}

	logger.Info("gateway started", "channel", ch.Name(), "pipeline", cfg.Pipeline.Mode)

	err = g.Wait()
	logger.Info("shutting down gateway")
	engine.Shutdown()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func buildPipeline(cfg *config.Config) domain.Pipeline {
	if cfg.Pipeline.Mode == "backend" {
		return pipeline.NewBackend(pipeline.BackendConfig{
			BaseURL: cfg.Pipeline.Backend.BaseURL,
			Model:   cfg.Pipeline.Backend.Model,
			Timeout: time.Duration(cfg.Pipeline.Backend.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
	}
	return pipeline.NewCommand(version, logger)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			logger.Info("gateway",
				"version", version,
				"channel", cfg.General.Channel,
				"pipeline", cfg.Pipeline.Mode,
				"workers", cfg.General.Workers,
				"publish", cfg.Publish.Enabled,
			)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := yaml.Marshal(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
