package dispatch

import (
	"log/slog"
	"strings"

	"chatgate/internal/domain"
)

// Composer builds the unit of work handed to the dispatch queue from an
// accepted inbound message.
type Composer struct {
	groupLog *GroupLog // optional
	logger   *slog.Logger
}

func NewComposer(groupLog *GroupLog, logger *slog.Logger) *Composer {
	return &Composer{groupLog: groupLog, logger: logger}
}

// Compose returns the Context for msg, or ok=false when there is nothing to
// dispatch. ok=false is normal control flow, not an error: empty text and
// unsupported message types compose to nothing.
//
// For group messages the per-conversation log append happens here as a
// best-effort side effect; its failure never prevents composition.
func (c *Composer) Compose(t domain.MessageType, content string, isGroup bool, msg *domain.InboundMessage) (*domain.Context, bool) {
	switch t {
	case domain.MessageText, domain.MessageSharing:
		content = strings.TrimSpace(content)
		if content == "" {
			return nil, false
		}
	case domain.MessageVoice, domain.MessageImage, domain.MessageFile, domain.MessageVideo:
		// payload reference travels as-is
	default:
		// note/system events and unknown types have no handler fallback
		return nil, false
	}

	if isGroup && c.groupLog != nil {
		if err := c.groupLog.Append(msg); err != nil {
			c.logger.Debug("group log append failed", "group", msg.GroupName, "err", err)
		}
	}

	key := msg.ConversationKey()
	return &domain.Context{
		Type:       t,
		Content:    content,
		IsGroup:    isGroup,
		Message:    msg,
		SessionKey: key,
		Route:      domain.Route{Receiver: key},
	}, true
}
