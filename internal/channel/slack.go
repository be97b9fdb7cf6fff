package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"chatgate/internal/domain"
)

const (
	slackMaxMsgLen = 4000
	slackMaxLogins = 5
	slackListLimit = 200
)

// Slack implements domain.Channel using Socket Mode.
type Slack struct {
	botToken string
	appToken string

	client  *slack.Client
	socket  *socketmode.Client
	botUID  string
	handler Handler
	fetcher *mediaFetcher
	limiter *sendLimiter
	logger  *slog.Logger
}

type SlackChannelConfig struct {
	BotToken   string
	AppToken   string
	RatePerMin int
	Burst      int
	Handler    Handler
	Logger     *slog.Logger
}

func NewSlack(cfg SlackChannelConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		handler:  cfg.Handler,
		fetcher:  newMediaFetcher(cfg.Logger),
		limiter:  newSendLimiter(cfg.RatePerMin, cfg.Burst),
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Startup authenticates, then blocks in the Socket Mode event loop until
// ctx is cancelled. Socket drops re-enter the loop with a bounded budget.
func (s *Slack) Startup(ctx context.Context) error {
	attempts := 0
	for {
		api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
		authResp, err := api.AuthTest()
		if err != nil {
			attempts++
			if attempts >= slackMaxLogins {
				return fmt.Errorf("slack auth failed after %d attempts: %w", attempts, err)
			}
			backoff := time.Duration(attempts) * 2 * time.Second
			s.logger.Warn("slack auth failed, retrying", "attempt", attempts, "backoff", backoff, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		attempts = 0
		s.client = api
		s.botUID = authResp.UserID
		s.logger.Info("slack login success", "user", authResp.User, "user_id", authResp.UserID)

		if err := s.receiveLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("slack socket closed, re-entering login", "err", err)
			continue
		}
		return nil
	}
}

func (s *Slack) receiveLoop(ctx context.Context) error {
	socketClient := socketmode.New(s.client)
	s.socket = socketClient

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(apiEvent)
			default:
				// unacked events disconnect Socket Mode
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	return socketClient.RunContext(ctx)
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// edits and other derived subtypes carry no new content
	if ev.SubType != "" && ev.SubType != "file_share" {
		return
	}
	if ev.User == "" {
		return
	}

	if msg := s.translate(ev); msg != nil {
		s.handler.HandleInbound(msg)
	}
}

func (s *Slack) translate(ev *slackevents.MessageEvent) *domain.InboundMessage {
	isGroup := ev.ChannelType != "im"
	msg := &domain.InboundMessage{
		ID:         ev.Channel + ":" + ev.TimeStamp,
		Content:    ev.Text,
		CreateTime: slackTimestamp(ev.TimeStamp),
		SenderID:   ev.User,
		SenderName: ev.User, // display names require an extra lookup; sender id is stable
		IsSelf:     ev.User == s.botUID,
		IsGroup:    isGroup,
	}
	if isGroup {
		msg.GroupID = ev.Channel
		msg.GroupName = ev.Channel
	}
	if ev.SubType == "file_share" {
		msg.Type = domain.MessageFile
	} else {
		msg.Type = domain.MessageText
	}
	return msg
}

// slackTimestamp parses Slack's "seconds.micros" event timestamp.
func slackTimestamp(ts string) time.Time {
	secs := ts
	if idx := strings.IndexByte(ts, '.'); idx >= 0 {
		secs = ts[:idx]
	}
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(n, 0)
}

// Send delivers one reply to the routed channel or IM.
func (s *Slack) Send(reply *domain.Reply, route domain.Route) error {
	s.limiter.wait()

	switch reply.Type {
	case domain.ReplyText, domain.ReplyInfo, domain.ReplyError:
		for _, chunk := range splitMessage(reply.Content, slackMaxMsgLen) {
			if _, _, err := s.client.PostMessage(route.Receiver,
				slack.MsgOptionText(chunk, false)); err != nil {
				return fmt.Errorf("slack send: %w", err)
			}
		}
		return nil

	case domain.ReplyImageURL, domain.ReplyVideoURL:
		data, size, err := s.fetcher.fetch(reply.Content)
		if err != nil {
			return err
		}
		return s.upload(route.Receiver, fileName(reply, "media"), data, size)

	case domain.ReplyImage, domain.ReplyFile, domain.ReplyVideo, domain.ReplyVoice:
		// UploadFileV2 wants the size up front, so buffer the stream.
		buf, err := io.ReadAll(reply.Stream)
		if err != nil {
			return fmt.Errorf("slack read payload: %w", err)
		}
		return s.upload(route.Receiver, fileName(reply, "file"), bytes.NewReader(buf), int64(len(buf)))
	}
	return fmt.Errorf("slack: unsupported reply type %q", reply.Type)
}

func (s *Slack) upload(channelID, name string, r io.Reader, size int64) error {
	_, err := s.client.UploadFileV2(slack.UploadFileV2Parameters{
		Reader:   r,
		FileSize: int(size),
		Filename: name,
		Channel:  channelID,
	})
	if err != nil {
		return fmt.Errorf("slack upload (%d bytes): %w", size, err)
	}
	return nil
}

// SearchContacts resolves user names server-side via users.list.
func (s *Slack) SearchContacts(name string) []domain.Target {
	users, err := s.client.GetUsers()
	if err != nil {
		s.logger.Warn("slack user search failed", "err", err)
		return nil
	}
	needle := strings.ToLower(name)
	var out []domain.Target
	for _, u := range users {
		if u.IsBot || u.Deleted {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), needle) ||
			strings.Contains(strings.ToLower(u.RealName), needle) {
			out = append(out, domain.Target{ID: u.ID, Name: u.RealName})
		}
	}
	return out
}

// SearchGroups resolves channel names server-side via conversations.list.
func (s *Slack) SearchGroups(name string) []domain.Target {
	channels, _, err := s.client.GetConversations(&slack.GetConversationsParameters{
		Types: []string{"public_channel", "private_channel"},
		Limit: slackListLimit,
	})
	if err != nil {
		s.logger.Warn("slack channel search failed", "err", err)
		return nil
	}
	needle := strings.ToLower(name)
	var out []domain.Target
	for _, ch := range channels {
		if strings.Contains(strings.ToLower(ch.Name), needle) {
			out = append(out, domain.Target{ID: ch.ID, Name: ch.Name})
		}
	}
	return out
}
