package domain

import "time"

// MessageType classifies an inbound platform message.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageVoice   MessageType = "voice"
	MessageImage   MessageType = "image"
	MessageFile    MessageType = "file"
	MessageVideo   MessageType = "video"
	MessageNote    MessageType = "note"    // system events: joins, pats, friend accepts
	MessageSharing MessageType = "sharing" // shared links / cards
	MessageUnknown MessageType = "unknown"
)

// InboundMessage is the platform-agnostic envelope an adapter builds from a
// raw platform event. It is immutable after creation and lives for exactly
// one dispatch cycle; ID is platform-unique and is the dedup key.
type InboundMessage struct {
	ID         string
	Type       MessageType
	Content    string
	CreateTime time.Time
	SenderID   string
	SenderName string
	IsGroup    bool
	GroupID    string // set iff IsGroup
	GroupName  string // set iff IsGroup
	IsSelf     bool   // authored by the bot account itself
}

// ConversationKey returns the identifier grouping this message into a
// conversation: the group for group chats, the sender otherwise.
func (m *InboundMessage) ConversationKey() string {
	if m.IsGroup {
		return m.GroupID
	}
	return m.SenderID
}
