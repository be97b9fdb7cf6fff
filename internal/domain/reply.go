package domain

import "io"

// ReplyType is the closed set of outbound payload kinds. Every adapter's
// Send must handle all of them.
type ReplyType string

const (
	ReplyText     ReplyType = "text"
	ReplyImage    ReplyType = "image"
	ReplyImageURL ReplyType = "image_url"
	ReplyFile     ReplyType = "file"
	ReplyVideo    ReplyType = "video"
	ReplyVideoURL ReplyType = "video_url"
	ReplyVoice    ReplyType = "voice"
	ReplyInfo     ReplyType = "info"
	ReplyError    ReplyType = "error"
)

// Reply is the normalized outbound unit produced by the handling pipeline
// and consumed exactly once by the originating adapter.
//
// Content carries text or a URL depending on Type; binary payloads (image,
// file, video, voice) travel in Stream instead.
type Reply struct {
	Type    ReplyType
	Content string
	Stream  io.Reader // binary payload for non-URL media types
	Name    string    // optional filename for file/voice/video payloads
}

// IsMedia reports whether the reply carries a media payload (inline or URL).
func (r *Reply) IsMedia() bool {
	switch r.Type {
	case ReplyImage, ReplyImageURL, ReplyFile, ReplyVideo, ReplyVideoURL, ReplyVoice:
		return true
	}
	return false
}

// TextReply is a convenience constructor for the common case.
func TextReply(content string) *Reply {
	return &Reply{Type: ReplyText, Content: content}
}

// ErrorReply wraps an operator-visible error message.
func ErrorReply(content string) *Reply {
	return &Reply{Type: ReplyError, Content: content}
}
