package channel

import (
	"fmt"
	"log/slog"

	"chatgate/internal/config"
	"chatgate/internal/domain"
)

// Build constructs the single active adapter named by the configuration.
// Adapters are explicit constructor calls, not a registry, so a missing
// credential fails here instead of at first send.
func Build(cfg *config.Config, handler Handler, logger *slog.Logger) (domain.Channel, error) {
	switch cfg.General.Channel {
	case "telegram":
		if cfg.Channels.Telegram.Token == "" {
			return nil, fmt.Errorf("channels.telegram.token is required")
		}
		return NewTelegram(TelegramConfig{
			Token:      cfg.Channels.Telegram.Token,
			AllowFrom:  cfg.Channels.Telegram.AllowFrom,
			ParseMode:  cfg.Channels.Telegram.ParseMode,
			RatePerMin: cfg.General.SendRatePerMinute,
			Burst:      cfg.General.SendBurst,
			Handler:    handler,
			Logger:     logger,
		}), nil

	case "slack":
		if cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "" {
			return nil, fmt.Errorf("channels.slack.botToken and appToken are required")
		}
		return NewSlack(SlackChannelConfig{
			BotToken:   cfg.Channels.Slack.BotToken,
			AppToken:   cfg.Channels.Slack.AppToken,
			RatePerMin: cfg.General.SendRatePerMinute,
			Burst:      cfg.General.SendBurst,
			Handler:    handler,
			Logger:     logger,
		}), nil

	case "discord":
		if cfg.Channels.Discord.Token == "" {
			return nil, fmt.Errorf("channels.discord.token is required")
		}
		return NewDiscord(DiscordConfig{
			Token:      cfg.Channels.Discord.Token,
			GuildID:    cfg.Channels.Discord.GuildID,
			RatePerMin: cfg.General.SendRatePerMinute,
			Burst:      cfg.General.SendBurst,
			Handler:    handler,
			Logger:     logger,
		}), nil

	case "terminal":
		return NewTerminal(TerminalConfig{Handler: handler, Logger: logger}), nil
	}
	return nil, fmt.Errorf("unknown channel adapter %q", cfg.General.Channel)
}
