package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatgate/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramMaxLogins      = 5
	telegramPollTimeout    = 30 // seconds, long-poll
)

// Telegram implements domain.Channel for the Telegram Bot API using long
// polling. A dropped connection re-enters the receive loop with a bounded
// re-login budget; dedup state lives outside the adapter and survives.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed sender IDs (empty = allow all)
	parseMode string

	bot     *tgbotapi.BotAPI
	handler Handler
	fetcher *mediaFetcher
	limiter *sendLimiter
	logger  *slog.Logger

	// conversations observed in this session, for name-based routing
	// resolution (the Bot API has no contact search of its own).
	dir *directory
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // sender IDs as strings
	ParseMode   string
	RatePerMin  int
	Burst       int
	Handler     Handler
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		handler:   cfg.Handler,
		fetcher:   newMediaFetcher(cfg.Logger),
		limiter:   newSendLimiter(cfg.RatePerMin, cfg.Burst),
		logger:    cfg.Logger,
		dir:       newDirectory(),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Startup logs in and blocks in the update loop until ctx is cancelled.
// Login failures and dropped update streams trigger bounded re-login
// attempts; process-wide state is untouched across re-logins.
func (t *Telegram) Startup(ctx context.Context) error {
	attempts := 0
	for {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			attempts++
			if attempts >= telegramMaxLogins {
				return fmt.Errorf("telegram login failed after %d attempts: %w", attempts, err)
			}
			backoff := time.Duration(attempts) * 2 * time.Second
			t.logger.Warn("telegram login failed, retrying",
				"attempt", attempts, "backoff", backoff, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		attempts = 0
		t.bot = bot
		t.logger.Info("telegram login success",
			"username", bot.Self.UserName, "id", bot.Self.ID)

		if err := t.receiveLoop(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		// update stream ended without cancellation: relogin
		t.logger.Warn("telegram update stream closed, re-entering login")
	}
}

func (t *Telegram) receiveLoop(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.logger.Info("telegram channel stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil // stream dropped; caller decides about re-login
			}
			if msg := t.translate(update); msg != nil {
				t.handler.HandleInbound(msg)
			}
		}
	}
}

// translate converts one raw update into the platform-agnostic envelope,
// or nil when the update carries nothing dispatchable.
func (t *Telegram) translate(update tgbotapi.Update) *domain.InboundMessage {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return nil
	}
	if !t.isAllowed(m.From.ID) {
		t.logger.Warn("unauthorized telegram sender",
			"user_id", m.From.ID, "username", m.From.UserName)
		return nil
	}

	isGroup := m.Chat.IsGroup() || m.Chat.IsSuperGroup()
	msg := &domain.InboundMessage{
		ID:         fmt.Sprintf("%d:%d", m.Chat.ID, m.MessageID),
		CreateTime: time.Unix(int64(m.Date), 0),
		SenderID:   strconv.FormatInt(m.From.ID, 10),
		SenderName: senderName(m.From),
		IsGroup:    isGroup,
		IsSelf:     m.From.ID == t.bot.Self.ID,
	}
	if isGroup {
		msg.GroupID = strconv.FormatInt(m.Chat.ID, 10)
		msg.GroupName = m.Chat.Title
	}

	switch {
	case m.Text != "":
		msg.Type = domain.MessageText
		msg.Content = m.Text
	case m.Voice != nil:
		msg.Type = domain.MessageVoice
		msg.Content = m.Voice.FileID
	case len(m.Photo) > 0:
		msg.Type = domain.MessageImage
		msg.Content = m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		msg.Type = domain.MessageVideo
		msg.Content = m.Video.FileID
	case m.Document != nil:
		msg.Type = domain.MessageFile
		msg.Content = m.Document.FileID
	case m.NewChatMembers != nil || m.LeftChatMember != nil:
		msg.Type = domain.MessageNote
		msg.Content = "membership change"
	default:
		msg.Type = domain.MessageUnknown
	}

	t.dir.observe(msg)
	return msg
}

func (t *Telegram) SearchContacts(name string) []domain.Target {
	return t.dir.searchContacts(name)
}

func (t *Telegram) SearchGroups(name string) []domain.Target {
	return t.dir.searchGroups(name)
}

// Send delivers one reply to the routed chat, handling every ReplyType.
func (t *Telegram) Send(reply *domain.Reply, route domain.Route) error {
	chatID, err := strconv.ParseInt(route.Receiver, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram receiver %q: %w", route.Receiver, err)
	}

	t.limiter.wait()

	switch reply.Type {
	case domain.ReplyText, domain.ReplyInfo, domain.ReplyError:
		return t.sendText(chatID, reply.Content)

	case domain.ReplyImageURL:
		data, size, err := t.fetcher.fetch(reply.Content)
		if err != nil {
			return err
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileReader{Name: "image", Reader: data})
		if _, err := t.bot.Send(photo); err != nil {
			return fmt.Errorf("telegram send photo (%d bytes): %w", size, err)
		}
		return nil

	case domain.ReplyImage:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileReader{Name: fileName(reply, "image"), Reader: reply.Stream})
		if _, err := t.bot.Send(photo); err != nil {
			return fmt.Errorf("telegram send photo: %w", err)
		}
		return nil

	case domain.ReplyVideoURL:
		data, size, err := t.fetcher.fetch(reply.Content)
		if err != nil {
			return err
		}
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: "video", Reader: data})
		if _, err := t.bot.Send(video); err != nil {
			return fmt.Errorf("telegram send video (%d bytes): %w", size, err)
		}
		return nil

	case domain.ReplyVideo:
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: fileName(reply, "video"), Reader: reply.Stream})
		if _, err := t.bot.Send(video); err != nil {
			return fmt.Errorf("telegram send video: %w", err)
		}
		return nil

	case domain.ReplyFile:
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: fileName(reply, "file"), Reader: reply.Stream})
		if _, err := t.bot.Send(doc); err != nil {
			return fmt.Errorf("telegram send document: %w", err)
		}
		return nil

	case domain.ReplyVoice:
		voice := tgbotapi.NewVoice(chatID, tgbotapi.FileReader{Name: fileName(reply, "voice"), Reader: reply.Stream})
		if _, err := t.bot.Send(voice); err != nil {
			return fmt.Errorf("telegram send voice: %w", err)
		}
		return nil
	}
	return fmt.Errorf("telegram: unsupported reply type %q", reply.Type)
}

func (t *Telegram) sendText(chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends one chunk with retry: Markdown first, plain-text fallback
// on parse errors, backoff on rate limiting.
func (t *Telegram) sendChunk(chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			backoff := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", backoff, "attempt", attempt+1)
			time.Sleep(backoff)
			continue
		}
		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying plain", "err", err)
			continue
		}
		if attempt < telegramMaxSendRetries {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return fmt.Errorf("telegram send after %d attempts: %w", telegramMaxSendRetries+1, lastErr)
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func senderName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func fileName(reply *domain.Reply, fallback string) string {
	if reply.Name != "" {
		return reply.Name
	}
	return fallback
}
