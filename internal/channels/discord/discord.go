package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/channels"
	"github.com/nextlevelbuilder/chatterbox/internal/config"
	"github.com/nextlevelbuilder/chatterbox/internal/emoji"
	"github.com/nextlevelbuilder/chatterbox/internal/history"
)

const (
	maxMessageLen = 2000
	maxHistory    = 100 // Discord caps a history page at 100 messages

	defaultBusyReply = "I'm a bit swamped in here, try again in a moment."
)

// Catalog is the emoji state the channel feeds and reads.
type Catalog interface {
	IngestKnownSymbols(group string, records []emoji.Symbol)
	Resolve(name string) (emoji.Symbol, bool)
	RecordUse(name string, self bool)
	Rewrite(text string, self bool) string
}

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	catalog   Catalog
	history   *history.Store
	botUserID string // populated on start
	logger    *slog.Logger
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, catalog Catalog, hist *history.Store, logger *slog.Logger) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	// Request necessary intents
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildEmojis |
		discordgo.IntentsGuildMessageReactions

	if logger == nil {
		logger = slog.Default()
	}
	if hist == nil {
		hist = history.NewStore(0)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", cfg.AllowFrom),
		session:     session,
		config:      cfg,
		catalog:     catalog,
		history:     hist,
		logger:      logger.With("component", "discord"),
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	c.logger.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleGuildCreate)
	c.session.AddHandler(c.handleEmojisUpdate)
	c.session.AddHandler(c.handleReactionAdd)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	// Fetch bot identity
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	c.logger.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.logger.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return c.Reply(ctx, msg)
}

// Reply sends msg, as a reply to msg.ReplyToID when set. Long content is
// split across several messages; only the first carries the reference.
func (c *Channel) Reply(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return errors.New("discord bot not running")
	}
	if msg.ChatID == "" {
		return errors.New("empty chat ID for discord send")
	}
	if msg.Content == "" {
		return nil
	}

	for i, chunk := range splitChunks(msg.Content, maxMessageLen) {
		send := &discordgo.MessageSend{
			Content: chunk,
			// Never ping anyone the model happened to name.
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		if i == 0 && msg.ReplyToID != "" {
			send.Reference = &discordgo.MessageReference{
				MessageID: msg.ReplyToID,
				ChannelID: msg.ChatID,
				GuildID:   msg.GuildID,
			}
		}
		if _, err := c.session.ChannelMessageSendComplex(msg.ChatID, send, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// RecentHistory fetches messages before the given one, oldest first.
func (c *Channel) RecentHistory(ctx context.Context, chatID string, limit int, before string) ([]history.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, maxHistory)
	msgs, err := c.session.ChannelMessages(chatID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch discord history: %w", err)
	}
	// Discord returns newest first.
	out := make([]history.Entry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Author == nil || strings.TrimSpace(msgs[i].Content) == "" {
			continue
		}
		out = append(out, c.toEntry(msgs[i]))
	}
	return out, nil
}

// FetchMessage loads one message.
func (c *Channel) FetchMessage(ctx context.Context, chatID, messageID string) (*history.Entry, error) {
	m, err := c.session.ChannelMessage(chatID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch discord message: %w", err)
	}
	if m.Author == nil {
		return nil, fmt.Errorf("discord message %s has no author", messageID)
	}
	e := c.toEntry(m)
	return &e, nil
}

// Typing shows the typing indicator for about ten seconds.
func (c *Channel) Typing(ctx context.Context, chatID string) error {
	return c.session.ChannelTyping(chatID, discordgo.WithContext(ctx))
}

// handleMessage processes incoming Discord messages.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot's own messages and other bots
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	// Every human message feeds the local transcript and the emoji counts,
	// whether or not the bot is addressed.
	c.history.Add(m.ChannelID, c.toEntry(m.Message))
	if m.GuildID != "" {
		c.catalog.Rewrite(m.Content, false)
	}

	isDM := m.GuildID == ""
	if isDM && !c.config.DMsAllowed() {
		return
	}
	if !isDM && !c.addressed(m.Message) {
		return
	}
	if !c.IsAllowed(m.Author.ID) && !c.IsAllowed(m.Author.Username) {
		c.logger.Debug("discord message rejected by allowlist", "user_id", m.Author.ID, "username", m.Author.Username)
		return
	}

	msg := c.inbound(m.Message)
	if msg.Content == "" && len(msg.Media) == 0 {
		return
	}

	c.logger.Debug("discord message received",
		"sender_id", msg.SenderID,
		"channel_id", msg.ChatID,
		"is_dm", isDM,
		"preview", channels.Truncate(msg.Content, 50),
	)

	if c.HandleMessage(msg) {
		return
	}
	busy := c.config.BusyReply
	if busy == "" {
		busy = defaultBusyReply
	}
	if err := c.Reply(context.Background(), bus.OutboundMessage{
		ChatID:    msg.ChatID,
		GuildID:   msg.GuildID,
		ReplyToID: msg.MessageID,
		Content:   busy,
	}); err != nil {
		c.logger.Warn("failed to send busy reply", "channel_id", msg.ChatID, "error", err)
	}
}

// addressed reports whether a guild message mentions the bot or replies to it.
func (c *Channel) addressed(m *discordgo.Message) bool {
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			return true
		}
	}
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == c.botUserID
}

// inbound converts a Discord message into the queued payload.
func (c *Channel) inbound(m *discordgo.Message) bus.InboundMessage {
	msg := bus.InboundMessage{
		Channel:    "discord",
		SenderID:   m.Author.ID,
		SenderName: resolveDisplayName(m),
		ChatID:     m.ChannelID,
		GuildID:    m.GuildID,
		MessageID:  m.ID,
		Content:    stripMention(m.Content, c.botUserID),
		Timestamp:  m.Timestamp,
		Metadata: map[string]string{
			"username": m.Author.Username,
		},
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	for _, att := range m.Attachments {
		msg.Media = append(msg.Media, bus.MediaAttachment{
			URL:         att.URL,
			ContentType: att.ContentType,
			Filename:    att.Filename,
			Size:        att.Size,
		})
	}
	return msg
}

func (c *Channel) toEntry(m *discordgo.Message) history.Entry {
	return history.Entry{
		MessageID: m.ID,
		AuthorID:  m.Author.ID,
		Author:    resolveDisplayName(m),
		Content:   stripMention(m.Content, c.botUserID),
		FromBot:   c.botUserID != "" && m.Author.ID == c.botUserID,
		Timestamp: m.Timestamp,
	}
}

func (c *Channel) handleGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	c.catalog.IngestKnownSymbols(g.ID, toSymbols(g.ID, g.Emojis))
	c.logger.Info("guild emoji loaded", "guild_id", g.ID, "guild", g.Name, "emoji", len(g.Emojis))
}

func (c *Channel) handleEmojisUpdate(_ *discordgo.Session, u *discordgo.GuildEmojisUpdate) {
	c.catalog.IngestKnownSymbols(u.GuildID, toSymbols(u.GuildID, u.Emojis))
	c.logger.Info("guild emoji updated", "guild_id", u.GuildID, "emoji", len(u.Emojis))
}

// handleReactionAdd counts reactions with known custom emoji.
func (c *Channel) handleReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil || r.Emoji.ID == "" {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot && r.UserID != c.botUserID {
		return
	}
	if _, ok := c.catalog.Resolve(r.Emoji.Name); !ok {
		return
	}
	c.catalog.RecordUse(r.Emoji.Name, r.UserID == c.botUserID)
}

func toSymbols(guildID string, emojis []*discordgo.Emoji) []emoji.Symbol {
	out := make([]emoji.Symbol, 0, len(emojis))
	for _, e := range emojis {
		if e == nil || e.ID == "" || !emoji.ValidName(e.Name) {
			continue
		}
		out = append(out, emoji.Symbol{Name: e.Name, ID: e.ID, Animated: e.Animated, Group: guildID})
	}
	return out
}

// stripMention removes the bot's own mention tags from content.
func stripMention(content, botID string) string {
	if botID != "" {
		content = strings.ReplaceAll(content, "<@"+botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	}
	return strings.TrimSpace(content)
}

// splitChunks breaks content into pieces of at most maxLen bytes, preferring
// to cut after a newline in the second half of a piece.
func splitChunks(content string, maxLen int) []string {
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		} else {
			// don't split a multi-byte rune
			for cutAt > 0 && !isRuneStart(content[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, content[:cutAt])
		content = content[cutAt:]
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
