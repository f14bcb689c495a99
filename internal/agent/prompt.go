package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/history"
	"github.com/nextlevelbuilder/chatterbox/internal/providers"
)

// buildRequest gathers the context for msg: recent history, the message being
// replied to and image descriptions. Missing context is logged and left out.
func (o *Orchestrator) buildRequest(ctx context.Context, msg bus.InboundMessage) providers.ChatRequest {
	entries, err := o.platform.RecentHistory(ctx, msg.ChatID, o.historyLimit, msg.MessageID)
	if err != nil {
		o.logger.Warn("history fetch failed, using local transcript", "chat_id", msg.ChatID, "error", err)
		entries = o.history.Recent(msg.ChatID, o.historyLimit, msg.MessageID)
	}

	var replyTo *history.Entry
	if msg.ReplyToID != "" {
		replyTo = o.referencedMessage(ctx, msg)
	}

	var images []string
	if len(msg.Media) > 0 && o.visionLadder != nil {
		images = o.describeImages(ctx, msg.Media)
	}

	return providers.ChatRequest{
		System:      o.systemPrompt(),
		Messages:    buildMessages(entries, msg, replyTo, images),
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}
}

func (o *Orchestrator) referencedMessage(ctx context.Context, msg bus.InboundMessage) *history.Entry {
	if e, ok := o.history.Find(msg.ChatID, msg.ReplyToID); ok {
		return &e
	}
	e, err := o.platform.FetchMessage(ctx, msg.ChatID, msg.ReplyToID)
	if err != nil {
		o.logger.Warn("referenced message unavailable", "chat_id", msg.ChatID, "message_id", msg.ReplyToID, "error", err)
		return nil
	}
	return e
}

func (o *Orchestrator) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(o.persona.Prompt())
	if name := o.persona.Name(); name != "" {
		fmt.Fprintf(&sb, "\n\nYour name is %s.", name)
	}
	if hot := o.symbols.HotSetDisplay(); len(hot) > 0 {
		sb.WriteString("\n\nEmoji you can use: ")
		sb.WriteString(strings.Join(hot, " "))
		sb.WriteString("\nTo use one, write its name between colons, e.g. :name:.")
	}
	return strings.TrimSpace(sb.String())
}

// buildMessages lays out the transcript as alternating turns: the bot's own
// messages are assistant turns, everyone else's are merged user turns
// prefixed with the author's name.
func buildMessages(entries []history.Entry, msg bus.InboundMessage, replyTo *history.Entry, images []string) []providers.Message {
	var msgs []providers.Message
	add := func(role, content string) {
		if content == "" {
			return
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n" + content
			return
		}
		msgs = append(msgs, providers.Message{Role: role, Content: content})
	}

	for _, e := range entries {
		if e.MessageID != "" && e.MessageID == msg.MessageID {
			continue
		}
		if e.FromBot {
			add(providers.RoleAssistant, e.Content)
			continue
		}
		add(providers.RoleUser, authorLine(e.Author, e.Content))
	}

	var sb strings.Builder
	if replyTo != nil {
		fmt.Fprintf(&sb, "(in reply to %s)\n", authorLine(replyTo.Author, truncate(replyTo.Content, 300)))
	}
	sb.WriteString(authorLine(msg.SenderName, msg.Content))
	for _, d := range images {
		fmt.Fprintf(&sb, "\n[image: %s]", d)
	}
	add(providers.RoleUser, sb.String())
	return msgs
}

func authorLine(author, content string) string {
	if author == "" {
		return content
	}
	return author + ": " + content
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
