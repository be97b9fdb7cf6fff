package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"chatgate/internal/domain"
)

const discordMaxMsgLen = 2000

// Discord implements domain.Channel over a gateway websocket session.
type Discord struct {
	token   string
	guildID string

	session *discordgo.Session
	handler Handler
	fetcher *mediaFetcher
	limiter *sendLimiter
	logger  *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token      string
	GuildID    string // non-empty restricts inbound traffic to one guild
	RatePerMin int
	Burst      int
	Handler    Handler
	Logger     *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		handler: cfg.Handler,
		fetcher: newMediaFetcher(cfg.Logger),
		limiter: newSendLimiter(cfg.RatePerMin, cfg.Burst),
		logger:  cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Startup opens the gateway session and blocks until ctx is cancelled.
// discordgo reconnects the websocket on its own, so no re-login loop here.
func (d *Discord) Startup(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.StateEnabled = true
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
			return
		}
		if msg := d.translate(s, m); msg != nil {
			d.handler.HandleInbound(msg)
		}
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord login success", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord channel stopping")
	return session.Close()
}

// translate converts one gateway message into the platform-agnostic
// envelope, or nil when the message carries nothing dispatchable.
func (d *Discord) translate(s *discordgo.Session, m *discordgo.MessageCreate) *domain.InboundMessage {
	if m.Author == nil {
		return nil
	}

	isGroup := m.GuildID != ""
	msg := &domain.InboundMessage{
		ID:         m.ChannelID + ":" + m.ID,
		CreateTime: messageTime(m.Timestamp),
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		IsGroup:    isGroup,
		IsSelf:     m.Author.ID == s.State.User.ID,
	}
	if isGroup {
		msg.GroupID = m.ChannelID
		msg.GroupName = d.channelName(m.ChannelID)
	}

	switch {
	case m.Content != "":
		msg.Type = domain.MessageText
		msg.Content = m.Content
	case len(m.Attachments) > 0:
		att := m.Attachments[0]
		msg.Content = att.URL
		switch {
		case strings.HasPrefix(att.ContentType, "image/"):
			msg.Type = domain.MessageImage
		case strings.HasPrefix(att.ContentType, "video/"):
			msg.Type = domain.MessageVideo
		case strings.HasPrefix(att.ContentType, "audio/"):
			msg.Type = domain.MessageVoice
		default:
			msg.Type = domain.MessageFile
		}
	default:
		msg.Type = domain.MessageUnknown
	}
	return msg
}

func (d *Discord) channelName(channelID string) string {
	if ch, err := d.session.State.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name
	}
	return channelID
}

func messageTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

// Send delivers one reply to the routed channel.
func (d *Discord) Send(reply *domain.Reply, route domain.Route) error {
	d.limiter.wait()

	switch reply.Type {
	case domain.ReplyText, domain.ReplyInfo, domain.ReplyError:
		for _, chunk := range splitMessage(reply.Content, discordMaxMsgLen) {
			if _, err := d.session.ChannelMessageSend(route.Receiver, chunk); err != nil {
				return fmt.Errorf("discord send: %w", err)
			}
		}
		return nil

	case domain.ReplyImageURL, domain.ReplyVideoURL:
		data, size, err := d.fetcher.fetch(reply.Content)
		if err != nil {
			return err
		}
		if _, err := d.session.ChannelFileSend(route.Receiver, fileName(reply, "media"), data); err != nil {
			return fmt.Errorf("discord send file (%d bytes): %w", size, err)
		}
		return nil

	case domain.ReplyImage, domain.ReplyFile, domain.ReplyVideo, domain.ReplyVoice:
		if _, err := d.session.ChannelFileSend(route.Receiver, fileName(reply, "file"), reply.Stream); err != nil {
			return fmt.Errorf("discord send file: %w", err)
		}
		return nil
	}
	return fmt.Errorf("discord: unsupported reply type %q", reply.Type)
}

// SearchContacts resolves user names against the session state cache.
func (d *Discord) SearchContacts(name string) []domain.Target {
	needle := strings.ToLower(name)
	var out []domain.Target
	for _, guild := range d.session.State.Guilds {
		for _, member := range guild.Members {
			if member.User == nil || member.User.Bot {
				continue
			}
			if strings.Contains(strings.ToLower(member.User.Username), needle) ||
				strings.Contains(strings.ToLower(member.Nick), needle) {
				out = append(out, domain.Target{ID: member.User.ID, Name: member.User.Username})
			}
		}
	}
	return out
}

// SearchGroups resolves text-channel names against the session state cache.
func (d *Discord) SearchGroups(name string) []domain.Target {
	needle := strings.ToLower(name)
	var out []domain.Target
	for _, guild := range d.session.State.Guilds {
		for _, ch := range guild.Channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			if strings.Contains(strings.ToLower(ch.Name), needle) {
				out = append(out, domain.Target{ID: ch.ID, Name: ch.Name})
			}
		}
	}
	return out
}
