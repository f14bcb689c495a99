// Package agent turns one queued chat message into one paced reply.
package agent

import (
	"context"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/history"
)

// Platform is the chat surface the orchestrator talks back to.
type Platform interface {
	// RecentHistory returns up to limit messages before the message with ID
	// before, oldest first.
	RecentHistory(ctx context.Context, chatID string, limit int, before string) ([]history.Entry, error)

	// FetchMessage loads a single message, e.g. the one being replied to.
	FetchMessage(ctx context.Context, chatID, messageID string) (*history.Entry, error)

	// Typing shows the typing indicator. Platforms expire it after a few seconds.
	Typing(ctx context.Context, chatID string) error

	Reply(ctx context.Context, msg bus.OutboundMessage) error
}

// Symbols is the emoji vocabulary used to prompt the model and to render its output.
type Symbols interface {
	HotSetDisplay() []string
	Rewrite(text string, self bool) string
}

// Persona supplies the bot's name and system prompt.
type Persona interface {
	Name() string
	Prompt() string
}
