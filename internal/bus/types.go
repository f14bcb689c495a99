package bus

import "time"

// InboundMessage is a message that triggered the bot on a chat platform.
type InboundMessage struct {
	Channel    string            `json:"channel"` // platform name, e.g. "discord"
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name"`
	ChatID     string            `json:"chat_id"`
	GuildID    string            `json:"guild_id,omitempty"` // empty for direct messages
	MessageID  string            `json:"message_id"`
	ReplyToID  string            `json:"reply_to_id,omitempty"` // message this one replies to
	Content    string            `json:"content"`
	Media      []MediaAttachment `json:"media,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a reply to be sent to a chat.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	GuildID   string            `json:"guild_id,omitempty"`
	ReplyToID string            `json:"reply_to_id,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MediaAttachment is a file attached to a message.
type MediaAttachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"` // MIME type (e.g. "image/png")
	Filename    string `json:"filename,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// IsImage reports whether the attachment looks like an image.
func (m MediaAttachment) IsImage() bool {
	return len(m.ContentType) > 6 && m.ContentType[:6] == "image/"
}

// Admitter accepts inbound messages for serialized processing per conversation.
// Admit returns false when the conversation's queue is full.
type Admitter interface {
	Admit(key string, msg InboundMessage) bool
}

// ConversationKey identifies the queue a message belongs to: guildID:channelID,
// or dm:channelID for direct messages.
func ConversationKey(guildID, chatID string) string {
	if guildID == "" {
		return "dm:" + chatID
	}
	return guildID + ":" + chatID
}
