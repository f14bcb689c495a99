// Package channels connects chat platforms to the per-conversation queues.
package channels

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "discord").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	admitter  atomic.Pointer[bus.Admitter]
	running   atomic.Bool
	allowList []string
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// SetAdmitter sets where inbound messages are queued. Messages arriving
// before it is set are rejected.
func (c *BaseChannel) SetAdmitter(a bus.Admitter) { c.admitter.Store(&a) }

// IsAllowed checks if a sender ID or username is permitted by the allowlist.
// Entries may carry a leading "@". Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(sender string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if sender != "" && strings.EqualFold(sender, strings.TrimPrefix(allowed, "@")) {
			return true
		}
	}
	return false
}

// HandleMessage queues msg on its conversation. It returns false when the
// message was not queued and the sender should be told to wait.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	a := c.admitter.Load()
	if a == nil || *a == nil {
		slog.Debug("no admitter set, rejecting message", "channel", c.name, "chat_id", msg.ChatID)
		return false
	}
	msg.Channel = c.name
	return (*a).Admit(bus.ConversationKey(msg.GuildID, msg.ChatID), msg)
}

// Truncate shortens s to at most maxLen bytes without splitting a rune,
// appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
