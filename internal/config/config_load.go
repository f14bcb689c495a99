package config

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

const DefaultDataDir = "~/.chatterbox"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			BusyReply:    "hang on, I'm still catching up on this channel. try me again in a sec",
			FailureReply: "sorry, my brain glitched on that one. try again in a bit?",
			MaxImages:    3,
		},
		Backend: BackendConfig{
			Provider:     "gemini",
			TextModels:   []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"},
			VisionModels: []string{"gemini-2.5-flash", "gemini-2.0-flash"},
			Temperature:  0.9,
			MaxTokens:    1024,
		},
		Queue: QueueConfig{
			MaxDepth:        5,
			ProcessingDelay: "2.5s",
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: "2.5s",
			WaitBuffer:   "1s",
		},
		Emoji: EmojiConfig{
			Store:      "file",
			Path:       DefaultDataDir + "/emoji_rankings.json",
			HotSetSize: 15,
			Schedule:   "*/10 * * * *",
		},
		History: HistoryConfig{
			Limit:    20,
			Capacity: 50,
		},
		Persona: PersonaConfig{
			Name:         "Chatterbox",
			Prompt:       "You are Chatterbox, a friendly regular in this Discord server. Keep replies short and casual.",
			VisionPrompt: "Describe this image in one or two sentences for someone who cannot see it.",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "chatterbox",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A .env file
// next to the config (or in the working directory) is loaded first; it never
// overrides variables already set in the environment.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func loadDotEnv(paths ...string) {
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		_ = godotenv.Load(abs)
	}
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				*dst = out
			}
		}
	}

	envStr("CHATTERBOX_DISCORD_TOKEN", &c.Discord.Token)

	envStr("CHATTERBOX_PROVIDER", &c.Backend.Provider)
	envStr("CHATTERBOX_API_KEY", &c.Backend.APIKey)
	if c.Backend.APIKey == "" {
		envStr("GEMINI_API_KEY", &c.Backend.APIKey)
	}
	envStr("CHATTERBOX_API_BASE", &c.Backend.APIBase)
	envList("CHATTERBOX_TEXT_MODELS", &c.Backend.TextModels)
	envList("CHATTERBOX_VISION_MODELS", &c.Backend.VisionModels)
	envInt("CHATTERBOX_RPM", &c.Backend.RPM)

	envInt("CHATTERBOX_QUEUE_MAX_DEPTH", &c.Queue.MaxDepth)
	envStr("CHATTERBOX_RETRY_RESET_COOLDOWN", &c.Retry.ResetCooldown)

	envStr("CHATTERBOX_EMOJI_STORE", &c.Emoji.Store)
	envStr("CHATTERBOX_EMOJI_PATH", &c.Emoji.Path)
	envStr("CHATTERBOX_EMOJI_POSTGRES_DSN", &c.Emoji.PostgresDSN)

	envStr("CHATTERBOX_PERSONA_FILE", &c.Persona.PromptFile)

	envStr("CHATTERBOX_HEALTH_ADDR", &c.Health.Addr)

	// Telemetry
	envStr("CHATTERBOX_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CHATTERBOX_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CHATTERBOX_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CHATTERBOX_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHATTERBOX_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Validate reports settings the bot cannot start with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord token is required (CHATTERBOX_DISCORD_TOKEN)"))
	}
	switch c.Backend.Provider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown backend provider %q", c.Backend.Provider))
	}
	if c.Backend.Provider == "gemini" && c.Backend.APIKey == "" {
		errs = append(errs, errors.New("gemini api key is required (CHATTERBOX_API_KEY)"))
	}
	if len(c.Backend.TextModels) == 0 {
		errs = append(errs, errors.New("backend.text_models must list at least one model"))
	}
	if len(c.Backend.VisionModels) == 0 {
		errs = append(errs, errors.New("backend.vision_models must list at least one model"))
	}
	switch c.Emoji.Store {
	case "", "file", "sqlite":
	case "postgres":
		if c.Emoji.PostgresDSN == "" {
			errs = append(errs, errors.New("emoji store postgres needs CHATTERBOX_EMOJI_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown emoji store %q", c.Emoji.Store))
	}
	return errors.Join(errs...)
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 hash of the config, for logging which config is live.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := &Config{}
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Discord.Token)
	maskNonEmpty(&cp.Backend.APIKey)
	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
