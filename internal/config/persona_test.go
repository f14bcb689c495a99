package config

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestPersonaInline(t *testing.T) {
	p, err := NewPersona(PersonaConfig{Name: "Bot", Prompt: "  be brief  "}, nil)
	if err != nil {
		t.Fatalf("NewPersona: %v", err)
	}
	if p.Prompt() != "be brief" || p.Name() != "Bot" {
		t.Fatalf("unexpected persona: %q %q", p.Name(), p.Prompt())
	}
	if err := p.Watch(); err != nil {
		t.Fatalf("Watch on inline prompt: %v", err)
	}
	p.Close()
}

func TestPersonaMissingFile(t *testing.T) {
	if _, err := NewPersona(PersonaConfig{PromptFile: filepath.Join(t.TempDir(), "nope.md")}, nil); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

// TestPersonaReload verifies edits to the prompt file are picked up.
func TestPersonaReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.md")
	writeFile(t, path, "first version")

	p, err := NewPersona(PersonaConfig{PromptFile: path}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewPersona: %v", err)
	}
	if err := p.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer p.Close()

	writeFile(t, path, "second version")

	deadline := time.Now().Add(3 * time.Second)
	for p.Prompt() != "second version" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := p.Prompt(); got != "second version" {
		t.Fatalf("expected reloaded prompt, got: %q", got)
	}
}

func TestPersonaYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	writeFile(t, path, "name: Pip\nprompt: |\n  You are Pip.\n  Keep it short.\n")

	p, err := NewPersona(PersonaConfig{Name: "Chatterbox", PromptFile: path}, nil)
	if err != nil {
		t.Fatalf("NewPersona: %v", err)
	}
	if p.Name() != "Pip" {
		t.Fatalf("expected name from file, got %q", p.Name())
	}
	if p.Prompt() != "You are Pip.\nKeep it short." {
		t.Fatalf("unexpected prompt: %q", p.Prompt())
	}
}

func TestPersonaYAMLWithoutPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yml")
	writeFile(t, path, "name: Pip\n")
	if _, err := NewPersona(PersonaConfig{PromptFile: path}, nil); err == nil {
		t.Fatal("expected error for persona file without prompt")
	}
}
