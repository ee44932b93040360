package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AUTOPILOT_BASE_BRANCH", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseBranch != DefaultBaseBranch {
		t.Errorf("BaseBranch = %q, want %q", cfg.BaseBranch, DefaultBaseBranch)
	}
	if !cfg.ShouldCleanupOnError() {
		t.Error("ShouldCleanupOnError() = false, want true by default")
	}
	if cfg.Prompts.Resolve != DefaultResolvePrompt {
		t.Error("Prompts.Resolve not defaulted")
	}
	if cfg.Enrichment.MaxDiffBytes != DefaultMaxDiffBytes {
		t.Errorf("MaxDiffBytes = %d", cfg.Enrichment.MaxDiffBytes)
	}
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `automation_root: /work/auto
base_repository_path: /work/repo
base_branch: main
cleanup_on_error: false
agent:
  kind: copilot
  timeout_minutes: 15
`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `automation_root = "/work/auto"
base_repository_path = "/work/repo"
base_branch = "main"
cleanup_on_error = false

[agent]
kind = "copilot"
timeout_minutes = 15
`,
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"automation_root":"/work/auto","base_repository_path":"/work/repo","base_branch":"main","cleanup_on_error":false,"agent":{"kind":"copilot","timeout_minutes":15}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.AutomationRoot != "/work/auto" || cfg.BaseRepositoryPath != "/work/repo" {
				t.Errorf("paths = %q, %q", cfg.AutomationRoot, cfg.BaseRepositoryPath)
			}
			if cfg.BaseBranch != "main" {
				t.Errorf("BaseBranch = %q, want main", cfg.BaseBranch)
			}
			if cfg.ShouldCleanupOnError() {
				t.Error("ShouldCleanupOnError() = true, want false")
			}
			if cfg.Agent.Kind != "copilot" || cfg.Agent.Timeout().Minutes() != 15 {
				t.Errorf("Agent = %+v", cfg.Agent)
			}
		})
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_AUTOMATION_ROOT", "/env/auto")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "automation_root: /file/auto\nenrichment:\n  provider: openai\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AutomationRoot != "/env/auto" {
		t.Errorf("AutomationRoot = %q, want env override", cfg.AutomationRoot)
	}
	if cfg.Enrichment.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want from OPENAI_API_KEY", cfg.Enrichment.APIKey)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".toml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config"+ext)
			cfg := Default()
			cfg.AutomationRoot = "/a"
			cfg.Model = "gpt-5"
			if err := Save(path, cfg); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.AutomationRoot != "/a" || got.Model != "gpt-5" {
				t.Errorf("round trip = %+v", got)
			}
		})
	}
}

func TestRequirePaths(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{"no automation root", Config{BaseRepositoryPath: dir}, "automation_root"},
		{"no base repository", Config{AutomationRoot: dir}, "base_repository_path"},
		{"missing base repository", Config{AutomationRoot: dir, BaseRepositoryPath: filepath.Join(dir, "nope")}, "base_repository_path"},
		{"ok", Config{AutomationRoot: dir, BaseRepositoryPath: dir}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.RequirePaths()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("RequirePaths() error = %v", err)
				}
				return
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("RequirePaths() error = %v, want *Error", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantField)
			}
		})
	}
}
