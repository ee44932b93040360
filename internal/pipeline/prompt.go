package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsandoval/autopilot/internal/config"
	"github.com/edsandoval/autopilot/internal/ticket"
)

// PromptBuilder renders agent prompts from ticket fields. Templates use
// the placeholders ${ID}, ${DESCRIPTION} and ${FILE}.
type PromptBuilder struct {
	resolve   string
	file      string
	useFile   bool
	promptDir string
}

// NewPromptBuilder creates a builder from the prompt configuration.
func NewPromptBuilder(cfg *config.Config) *PromptBuilder {
	b := &PromptBuilder{
		resolve: cfg.Prompts.Resolve,
		file:    cfg.Prompts.File,
		useFile: cfg.Prompts.UseFile,
	}
	if b.resolve == "" {
		b.resolve = config.DefaultResolvePrompt
	}
	if b.file == "" {
		b.file = config.DefaultFilePrompt
	}
	if cfg.AutomationRoot != "" {
		b.promptDir = filepath.Join(cfg.AutomationRoot, ".prompts")
	}
	return b
}

// Build renders the prompt for t. In prompt-file mode the description is
// written outside the worktree and referenced through ${FILE}.
func (b *PromptBuilder) Build(t *ticket.Ticket) (string, error) {
	if !b.useFile || b.promptDir == "" {
		return Render(b.resolve, t.ID, t.Description, ""), nil
	}

	if err := os.MkdirAll(b.promptDir, 0o755); err != nil {
		return "", fmt.Errorf("creating prompt directory: %w", err)
	}
	path := filepath.Join(b.promptDir, t.ID+".md")
	if err := os.WriteFile(path, []byte(t.Description), 0o644); err != nil {
		return "", fmt.Errorf("writing prompt file: %w", err)
	}
	return Render(b.file, t.ID, t.Description, path), nil
}

// Render substitutes the template placeholders.
func Render(tmpl, id, description, file string) string {
	return strings.NewReplacer(
		"${ID}", id,
		"${DESCRIPTION}", description,
		"${FILE}", file,
	).Replace(tmpl)
}
