// Package config holds the caller-facing memory configuration and loads it
// from YAML.
//
//	lastMessages: 10            # or false
//	semanticRecall:             # or true / false
//	  topK: 4
//	  messageRange: 1           # or {before: 2, after: 1}
//	  scope: thread             # or resource
//	workingMemory:
//	  enabled: true
//	  use: inline-tag           # or structured-call
//	  scope: thread
//	  template: |
//	    # User Information
//	threads:
//	  generateTitle: true
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/recall"
	"github.com/hupe1980/threadmem/workingmemory"
)

// Config is the complete memory configuration.
type Config struct {
	LastMessages   LastMessages   `yaml:"lastMessages"`
	SemanticRecall SemanticRecall `yaml:"semanticRecall"`
	WorkingMemory  WorkingMemory  `yaml:"workingMemory"`
	Threads        Threads        `yaml:"threads"`
	Storage        Storage        `yaml:"storage"`
	Embedder       Embedder       `yaml:"embedder"`
}

// LastMessages is the recency window size. In YAML it is a number or false;
// zero disables the window.
type LastMessages int

// SemanticRecall configures similarity recall. In YAML it is a bool or an
// object; an object enables recall unless it sets enabled: false.
type SemanticRecall struct {
	Enabled      bool           `yaml:"enabled"`
	TopK         int            `yaml:"topK"`
	MessageRange MessageRange   `yaml:"messageRange"`
	Scope        core.ScopeKind `yaml:"scope"`
}

// MessageRange is the window around a semantic hit. In YAML it is a number,
// applied to both sides, or {before, after}.
type MessageRange struct {
	Before int `yaml:"before"`
	After  int `yaml:"after"`
}

// WorkingMemory configures the working memory updater.
type WorkingMemory struct {
	Enabled  bool               `yaml:"enabled"`
	Template string             `yaml:"template"`
	Use      workingmemory.Mode `yaml:"use"`
	Scope    core.ScopeKind     `yaml:"scope"`
}

// Threads configures thread housekeeping.
type Threads struct {
	GenerateTitle bool `yaml:"generateTitle"`
}

// Storage selects where state is kept. Empty paths keep everything in memory.
type Storage struct {
	// Path is the bbolt file for threads and working memory.
	Path string `yaml:"path"`
	// VectorDir is the chromem persistence directory.
	VectorDir string `yaml:"vectorDir"`
}

// Embedder selects the embedding provider.
type Embedder struct {
	// Provider is "mock" or "openai".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// Cache wraps the provider in an in-process embedding cache.
	Cache bool `yaml:"cache"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		LastMessages: 10,
		SemanticRecall: SemanticRecall{
			Enabled:      false,
			TopK:         4,
			MessageRange: MessageRange{Before: 1, After: 1},
			Scope:        core.ScopeThread,
		},
		WorkingMemory: WorkingMemory{
			Enabled:  false,
			Template: workingmemory.DefaultTemplate,
			Use:      workingmemory.ModeInlineTag,
			Scope:    core.ScopeThread,
		},
		Embedder: Embedder{Provider: "mock"},
	}
}

// Load reads a YAML file over Default. Environment variables in the file are
// expanded first.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %v", core.ErrInvalidArgument, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports ErrInvalidArgument for out-of-range values.
func (c Config) Validate() error {
	if c.LastMessages < 0 {
		return invalid("lastMessages must not be negative, got %d", c.LastMessages)
	}
	if sr := c.SemanticRecall; sr.Enabled {
		if sr.TopK <= 0 {
			return invalid("semanticRecall.topK must be positive, got %d", sr.TopK)
		}
		if sr.MessageRange.Before < 0 || sr.MessageRange.After < 0 {
			return invalid("semanticRecall.messageRange must not be negative")
		}
		if err := validScope("semanticRecall.scope", sr.Scope); err != nil {
			return err
		}
	}
	if wm := c.WorkingMemory; wm.Enabled {
		if _, err := workingmemory.ParseMode(string(wm.Use)); err != nil {
			return err
		}
		if err := validScope("workingMemory.scope", wm.Scope); err != nil {
			return err
		}
	}
	switch c.Embedder.Provider {
	case "", "mock", "openai":
	default:
		return invalid("unknown embedder provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Dimensions < 0 {
		return invalid("embedder.dimensions must not be negative")
	}
	return nil
}

// ApplyRecall copies the recall settings into o.
func (c Config) ApplyRecall(o *recall.Options) {
	o.LastMessages = int(c.LastMessages)
	o.SemanticRecall = recall.SemanticRecall{
		Enabled: c.SemanticRecall.Enabled,
		TopK:    c.SemanticRecall.TopK,
		MessageRange: recall.MessageRange{
			Before: c.SemanticRecall.MessageRange.Before,
			After:  c.SemanticRecall.MessageRange.After,
		},
		Scope: c.SemanticRecall.Scope,
	}
}

// ApplyWorkingMemory copies the working memory settings into o.
func (c Config) ApplyWorkingMemory(o *workingmemory.Options) {
	o.Enabled = c.WorkingMemory.Enabled
	o.Mode = c.WorkingMemory.Use
	o.Scope = c.WorkingMemory.Scope
	if c.WorkingMemory.Template != "" {
		o.Template = c.WorkingMemory.Template
	}
}

func validScope(field string, kind core.ScopeKind) error {
	if kind != core.ScopeThread && kind != core.ScopeResource {
		return invalid("%s must be thread or resource, got %q", field, kind)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrInvalidArgument}, args...)...)
}
