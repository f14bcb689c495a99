package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the bot.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Backend   BackendConfig   `json:"backend"`
	Queue     QueueConfig     `json:"queue"`
	Retry     RetryConfig     `json:"retry"`
	Pacing    PacingConfig    `json:"pacing"`
	Emoji     EmojiConfig     `json:"emoji"`
	History   HistoryConfig   `json:"history"`
	Persona   PersonaConfig   `json:"persona"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Health    HealthConfig    `json:"health,omitempty"`
	mu        sync.RWMutex
}

// DiscordConfig configures the Discord connection and the canned replies.
type DiscordConfig struct {
	Token        string `json:"token"`
	AllowDMs     *bool  `json:"allow_dms,omitempty"`     // answer direct messages (default true)
	BusyReply    string `json:"busy_reply,omitempty"`    // sent when a channel's queue is full
	FailureReply string `json:"failure_reply,omitempty"` // sent when a reply could not be generated
	MaxImages    int    `json:"max_images,omitempty"`    // image attachments described per message (default 3)

	AllowFrom []string `json:"allow_from,omitempty"` // user IDs or usernames; empty allows everyone
}

// DMsAllowed reports whether direct messages are answered.
func (d DiscordConfig) DMsAllowed() bool {
	return d.AllowDMs == nil || *d.AllowDMs
}

// BackendConfig selects the language-model backend and its model ladders.
type BackendConfig struct {
	Provider     string   `json:"provider"` // "gemini" (default) or "openai" (any OpenAI-compatible API)
	APIKey       string   `json:"api_key,omitempty"`
	APIBase      string   `json:"api_base,omitempty"` // openai only
	TextModels   []string `json:"text_models"`        // fallback order, best first
	VisionModels []string `json:"vision_models"`
	RPM          int      `json:"rpm,omitempty"` // requests per minute across all calls (0 = unlimited)
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

// QueueConfig configures per-channel admission.
type QueueConfig struct {
	MaxDepth        int    `json:"max_depth,omitempty"`        // default 5
	ProcessingDelay string `json:"processing_delay,omitempty"` // pause between items (default "2.5s")
}

func (q QueueConfig) ProcessingDelayDuration() time.Duration {
	return parseDuration(q.ProcessingDelay, 2500*time.Millisecond)
}

// RetryConfig configures the backend retry policy.
type RetryConfig struct {
	MaxRetries    int    `json:"max_retries,omitempty"`    // default 3
	InitialDelay  string `json:"initial_delay,omitempty"`  // first backoff (default "2.5s"), doubles each retry
	WaitBuffer    string `json:"wait_buffer,omitempty"`    // added to a server-suggested wait (default "1s")
	ResetCooldown string `json:"reset_cooldown,omitempty"` // min time between ladder restarts (default "0s")
}

func (r RetryConfig) InitialDelayDuration() time.Duration {
	return parseDuration(r.InitialDelay, 2500*time.Millisecond)
}

func (r RetryConfig) WaitBufferDuration() time.Duration {
	return parseDuration(r.WaitBuffer, time.Second)
}

func (r RetryConfig) ResetCooldownDuration() time.Duration {
	return parseDuration(r.ResetCooldown, 0)
}

// PacingConfig shapes the human-like delays around a reply.
type PacingConfig struct {
	ThinkingMin string `json:"thinking_min,omitempty"` // before typing starts (default "0.5s")
	ThinkingMax string `json:"thinking_max,omitempty"` // default "2s"
	TypingMin   string `json:"typing_min,omitempty"`   // typing while the reply is generated (default "1s")
	TypingMax   string `json:"typing_max,omitempty"`   // default "3s"
	PerChar     string `json:"per_char,omitempty"`     // extra typing per reply character (default "30ms")
	FinalMax    string `json:"final_max,omitempty"`    // cap on the per-character delay (default "5s")
	Disabled    bool   `json:"disabled,omitempty"`
}

// Durations returns the pacing values with defaults applied.
func (p PacingConfig) Durations() (thinkMin, thinkMax, typeMin, typeMax, perChar, finalMax time.Duration) {
	return parseDuration(p.ThinkingMin, 500*time.Millisecond),
		parseDuration(p.ThinkingMax, 2*time.Second),
		parseDuration(p.TypingMin, time.Second),
		parseDuration(p.TypingMax, 3*time.Second),
		parseDuration(p.PerChar, 30*time.Millisecond),
		parseDuration(p.FinalMax, 5*time.Second)
}

// EmojiConfig configures the emoji ranking store and hot set.
// PostgresDSN is never read from the config file, only from CHATTERBOX_EMOJI_POSTGRES_DSN.
type EmojiConfig struct {
	Store       string `json:"store,omitempty"` // "file" (default), "sqlite" or "postgres"
	Path        string `json:"path,omitempty"`  // file / sqlite location
	PostgresDSN string `json:"-"`
	HotSetSize  int    `json:"hot_set_size,omitempty"` // default 15
	Schedule    string `json:"schedule,omitempty"`     // cron expression for hot set rebuilds (default "*/10 * * * *")
}

// HistoryConfig bounds the transcript fed to the model.
type HistoryConfig struct {
	Limit    int `json:"limit,omitempty"`    // messages per prompt (default 20)
	Capacity int `json:"capacity,omitempty"` // in-memory messages kept per chat (default 50)
}

// PersonaConfig sets who the bot is. PromptFile wins over Prompt and is
// reloaded when it changes on disk.
type PersonaConfig struct {
	Name         string `json:"name,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	PromptFile   string `json:"prompt_file,omitempty"`
	VisionPrompt string `json:"vision_prompt,omitempty"` // instruction for describing images
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "chatterbox"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// HealthConfig configures the HTTP health endpoint. An empty Addr disables it.
type HealthConfig struct {
	Addr string `json:"addr,omitempty"` // e.g. "127.0.0.1:18791"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
