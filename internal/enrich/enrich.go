// Package enrich produces commit messages and change reports from diffs.
// Every failure is reported as *Error so callers can fall back.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/edsandoval/autopilot/internal/config"
)

// MaxCommitSubject is the longest commit subject returned.
const MaxCommitSubject = 60

const commitPrompt = `Write a git commit subject for ticket ${ID}.
Use the imperative mood and at most 60 characters. Reply with the subject only.

Diff:
${DIFF}`

const summaryPrompt = `Summarize the changes made for ticket ${ID} for a code reviewer.
Commit: ${COMMIT}
Reply in Markdown with a short overview paragraph followed by a bullet list of the notable changes.

Diff:
${DIFF}`

// Error wraps a failed enrichment step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("enrichment %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Enricher generates commit messages and HTML summaries.
type Enricher struct {
	provider Provider
	maxDiff  int
	md       goldmark.Markdown
	logger   *slog.Logger
}

// New creates an enricher. maxDiff bounds the diff prefix sent to the
// provider; zero uses the default.
func New(provider Provider, maxDiff int, logger *slog.Logger) *Enricher {
	if maxDiff <= 0 {
		maxDiff = config.DefaultMaxDiffBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		provider: provider,
		maxDiff:  maxDiff,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   logger.With("component", "enrich", "provider", provider.Name()),
	}
}

// FromConfig builds an enricher from configuration. It returns nil when
// enrichment is disabled.
func FromConfig(cfg config.EnrichmentConfig, logger *slog.Logger) (*Enricher, error) {
	var p Provider
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, config.NewError("enrichment.api_key", "API key is required")
		}
		p = NewOpenAI(cfg.APIKey, WithBaseURL(cfg.BaseURL), WithModel(cfg.Model))
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, config.NewError("enrichment.api_key", "API key is required")
		}
		p = NewAnthropic(cfg.APIKey, WithBaseURL(cfg.BaseURL), WithModel(cfg.Model))
	default:
		return nil, config.NewError("enrichment.provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
	return New(p, cfg.MaxDiffBytes, logger), nil
}

// CommitMessage asks the provider for a short commit subject.
func (e *Enricher) CommitMessage(ctx context.Context, diff, ticketID string) (string, error) {
	prompt := strings.NewReplacer("${ID}", ticketID, "${DIFF}", e.truncate(diff)).Replace(commitPrompt)

	resp, err := e.provider.Complete(ctx, prompt)
	if err != nil {
		return "", &Error{Op: "commit message", Err: err}
	}
	subject := cleanSubject(resp)
	if subject == "" {
		return "", &Error{Op: "commit message", Err: fmt.Errorf("empty response")}
	}
	e.logger.Debug("commit message generated", "ticket", ticketID, "subject", subject)
	return subject, nil
}

// Summarize asks the provider for a Markdown change report and renders
// it as HTML.
func (e *Enricher) Summarize(ctx context.Context, ticketID, diff, commitMessage string) (string, error) {
	prompt := strings.NewReplacer(
		"${ID}", ticketID,
		"${COMMIT}", commitMessage,
		"${DIFF}", e.truncate(diff),
	).Replace(summaryPrompt)

	resp, err := e.provider.Complete(ctx, prompt)
	if err != nil {
		return "", &Error{Op: "summary", Err: err}
	}
	resp = stripFences(resp)
	if resp == "" {
		return "", &Error{Op: "summary", Err: fmt.Errorf("empty response")}
	}

	var buf bytes.Buffer
	if err := e.md.Convert([]byte(resp), &buf); err != nil {
		return "", &Error{Op: "summary", Err: fmt.Errorf("render markdown: %w", err)}
	}
	return fmt.Sprintf("<section class=\"summary\" data-ticket=\"%s\">\n<h2>%s</h2>\n%s</section>\n",
		html.EscapeString(ticketID), html.EscapeString(ticketID), buf.String()), nil
}

// FailureReport is the summary substituted when Summarize fails.
func FailureReport(ticketID string, err error) string {
	reason := "summary generation is not configured"
	if err != nil {
		reason = err.Error()
	}
	return fmt.Sprintf("<section class=\"summary summary-unavailable\" data-ticket=\"%s\">\n<h2>%s</h2>\n<p>Summary unavailable: %s</p>\n</section>\n",
		html.EscapeString(ticketID), html.EscapeString(ticketID), html.EscapeString(reason))
}

// truncate cuts diff to at most maxDiff bytes on a rune boundary.
func (e *Enricher) truncate(diff string) string {
	if len(diff) <= e.maxDiff {
		return diff
	}
	cut := diff[:e.maxDiff]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// cleanSubject reduces a model reply to a single-line subject.
func cleanSubject(s string) string {
	s = stripFences(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(strings.TrimSpace(s), "\"'`")
	if utf8.RuneCountInString(s) > MaxCommitSubject {
		s = strings.TrimSpace(string([]rune(s)[:MaxCommitSubject]))
	}
	return s
}

// stripFences removes a surrounding ``` code block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
