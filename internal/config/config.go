// Package config loads autopilot settings from YAML, TOML or JSON files
// with environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Default values applied by Load.
const (
	DefaultBaseBranch   = "develop"
	DefaultRemote       = "origin"
	DefaultAgent        = "claude"
	DefaultMaxDiffBytes = 5000
	DefaultFileName     = "config.yaml"
)

// DefaultResolvePrompt is used when no resolve template is configured.
const DefaultResolvePrompt = `You are working on ticket ${ID} in the current repository.

Ticket description:
${DESCRIPTION}

Make the code changes needed to resolve this ticket. Do not commit.
If you cannot make progress, print <promise>BLOCKED: reason</promise>.`

// DefaultFilePrompt is used in prompt-file mode when no file template is configured.
const DefaultFilePrompt = `You are working on ticket ${ID} in the current repository.

The ticket description is in ${FILE}. Read it, then make the code changes
needed to resolve the ticket. Do not commit.
If you cannot make progress, print <promise>BLOCKED: reason</promise>.`

// Config is the root configuration.
type Config struct {
	AutomationRoot     string `yaml:"automation_root" toml:"automation_root" json:"automation_root,omitempty"`
	BaseRepositoryPath string `yaml:"base_repository_path" toml:"base_repository_path" json:"base_repository_path,omitempty"`
	BaseBranch         string `yaml:"base_branch" toml:"base_branch" json:"base_branch,omitempty"`
	Remote             string `yaml:"remote" toml:"remote" json:"remote,omitempty"`
	Model              string `yaml:"model" toml:"model" json:"model,omitempty"`

	// CleanupOnError removes a ticket's worktree when resolution fails
	// before changes are inspected (default true).
	CleanupOnError *bool `yaml:"cleanup_on_error,omitempty" toml:"cleanup_on_error,omitempty" json:"cleanup_on_error,omitempty"`

	Agent      AgentConfig      `yaml:"agent" toml:"agent" json:"agent"`
	Prompts    PromptConfig     `yaml:"prompts" toml:"prompts" json:"prompts"`
	Enrichment EnrichmentConfig `yaml:"enrichment" toml:"enrichment" json:"enrichment"`
	Store      StoreConfig      `yaml:"store" toml:"store" json:"store"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch" json:"watch"`
}

// AgentConfig selects the code-generation agent.
type AgentConfig struct {
	Kind           string `yaml:"kind" toml:"kind" json:"kind,omitempty"`
	Command        string `yaml:"command" toml:"command" json:"command,omitempty"`
	TimeoutMinutes int    `yaml:"timeout_minutes" toml:"timeout_minutes" json:"timeout_minutes,omitempty"`
}

// Timeout returns the per-ticket agent timeout, zero meaning none.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMinutes) * time.Minute
}

// PromptConfig holds the prompt templates.
type PromptConfig struct {
	Resolve string `yaml:"resolve" toml:"resolve" json:"resolve,omitempty"`
	File    string `yaml:"file" toml:"file" json:"file,omitempty"`
	UseFile bool   `yaml:"use_file" toml:"use_file" json:"use_file,omitempty"`
}

// EnrichmentConfig configures the commit message and summary generator.
// An empty Provider disables enrichment.
type EnrichmentConfig struct {
	Provider     string `yaml:"provider" toml:"provider" json:"provider,omitempty"`
	BaseURL      string `yaml:"base_url" toml:"base_url" json:"base_url,omitempty"`
	APIKey       string `yaml:"api_key" toml:"api_key" json:"api_key,omitempty"`
	Model        string `yaml:"model" toml:"model" json:"model,omitempty"`
	MaxDiffBytes int    `yaml:"max_diff_bytes" toml:"max_diff_bytes" json:"max_diff_bytes,omitempty"`
}

// StoreConfig locates the ticket store.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver" json:"driver,omitempty"`
	Path   string `yaml:"path" toml:"path" json:"path,omitempty"`
}

// WatchConfig configures unattended runs.
type WatchConfig struct {
	Schedule string `yaml:"schedule" toml:"schedule" json:"schedule,omitempty"`
	NoFS     bool   `yaml:"no_fs" toml:"no_fs" json:"no_fs,omitempty"`
}

// ShouldCleanupOnError reports the cleanup policy (default true).
func (c *Config) ShouldCleanupOnError() bool {
	if c == nil || c.CleanupOnError == nil {
		return true
	}
	return *c.CleanupOnError
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.BaseBranch == "" {
		c.BaseBranch = DefaultBaseBranch
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	if c.Agent.Kind == "" {
		c.Agent.Kind = DefaultAgent
	}
	if c.Prompts.Resolve == "" {
		c.Prompts.Resolve = DefaultResolvePrompt
	}
	if c.Prompts.File == "" {
		c.Prompts.File = DefaultFilePrompt
	}
	if c.Enrichment.MaxDiffBytes <= 0 {
		c.Enrichment.MaxDiffBytes = DefaultMaxDiffBytes
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(DataDir(), "tickets.json")
	}
}

// Dir returns the directory holding the default config file.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autopilot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autopilot")
	}
	return filepath.Join(home, ".config", "autopilot")
}

// DataDir returns the directory holding the default ticket store.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "autopilot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autopilot")
	}
	return filepath.Join(home, ".local", "share", "autopilot")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), DefaultFileName)
}

// Load reads the config file at path, decoding by extension. A missing
// file yields defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Save writes cfg to path, encoding by extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.AutomationRoot, "AUTOPILOT_AUTOMATION_ROOT")
	set(&c.BaseRepositoryPath, "AUTOPILOT_BASE_REPOSITORY")
	set(&c.BaseBranch, "AUTOPILOT_BASE_BRANCH")
	set(&c.Model, "AUTOPILOT_MODEL")
	set(&c.Store.Path, "AUTOPILOT_STORE")

	if c.Enrichment.APIKey == "" {
		switch c.Enrichment.Provider {
		case "openai":
			c.Enrichment.APIKey = getenv("OPENAI_API_KEY")
		case "anthropic":
			c.Enrichment.APIKey = getenv("ANTHROPIC_API_KEY")
		}
	}
}
