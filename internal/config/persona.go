package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Persona serves the system prompt. When backed by a file it reloads the
// prompt whenever the file changes; a failed reload keeps the last good text.
// A .yaml/.yml file carries both fields:
//
//	name: Pip
//	prompt: |
//	  You are Pip, ...
type Persona struct {
	path string

	mu     sync.RWMutex
	name   string
	prompt string

	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

// NewPersona loads the persona from cfg. An unreadable prompt file is an error.
func NewPersona(cfg PersonaConfig, logger *slog.Logger) (*Persona, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persona{
		name:   cfg.Name,
		prompt: strings.TrimSpace(cfg.Prompt),
		logger: logger.With("component", "persona"),
	}
	if cfg.PromptFile != "" {
		p.path = ExpandHome(cfg.PromptFile)
		if err := p.reload(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name returns the persona's display name.
func (p *Persona) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Prompt returns the current system prompt.
func (p *Persona) Prompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prompt
}

func (p *Persona) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}
	var name, text string
	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".yaml", ".yml":
		var doc personaFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse persona file: %w", err)
		}
		name, text = strings.TrimSpace(doc.Name), strings.TrimSpace(doc.Prompt)
	default:
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return fmt.Errorf("persona file %s has no prompt", p.path)
	}
	p.mu.Lock()
	p.prompt = text
	if name != "" {
		p.name = name
	}
	p.mu.Unlock()
	return nil
}

type personaFile struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// Watch starts reloading the prompt file on change. It is a no-op for inline prompts.
// The directory is watched so editors that replace the file on save are handled.
func (p *Persona) Watch() error {
	if p.path == "" || p.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}
	p.watcher = watcher
	p.done = make(chan struct{})

	target := filepath.Clean(p.path)
	go func() {
		defer close(p.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if err := p.reload(); err != nil {
					p.logger.Warn("persona reload failed, keeping previous prompt", "path", p.path, "error", err)
					continue
				}
				p.logger.Info("persona reloaded", "path", p.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("persona watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops watching.
func (p *Persona) Close() error {
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	<-p.done
	p.watcher = nil
	return err
}
