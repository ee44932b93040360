package agent

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ClaudeAgent implements the Agent interface for the Claude Code CLI.
type ClaudeAgent struct {
	// Command is the path to the claude binary. Defaults to "claude".
	Command string
}

// NewClaudeAgent creates a new Claude Code agent with default settings.
func NewClaudeAgent() *ClaudeAgent {
	return &ClaudeAgent{Command: "claude"}
}

// Name returns "claude".
func (a *ClaudeAgent) Name() string {
	return "claude"
}

// Available checks if the claude CLI is installed and accessible.
func (a *ClaudeAgent) Available() bool {
	_, err := exec.LookPath(a.command())
	return err == nil
}

// Run executes claude non-interactively in opts.Dir.
func (a *ClaudeAgent) Run(ctx context.Context, prompt string, opts RunOpts) (*Result, error) {
	return runCLI(ctx, a.Name(), a.command(), a.args(prompt, opts), opts)
}

func (a *ClaudeAgent) args(prompt string, opts RunOpts) []string {
	args := []string{"--dangerously-skip-permissions", "--print"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return append(args, prompt)
}

// command returns the claude binary path.
func (a *ClaudeAgent) command() string {
	if a.Command != "" {
		return a.Command
	}
	return "claude"
}

var (
	inputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Ii]nput\s*(?:tokens)?[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s*input\s*tokens?`),
	}
	outputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Oo]utput\s*(?:tokens)?[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s*output\s*tokens?`),
	}
	costPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Cc]ost[:\s]+\$?([\d.]+)`),
		regexp.MustCompile(`\$([\d.]+)\s*(?:total|cost)?`),
	}
)

// parseUsageFromOutput extracts token usage and cost from CLI output.
// Returns (tokensIn, tokensOut, cost).
func parseUsageFromOutput(output string) (int, int, float64) {
	var tokensIn, tokensOut int
	var cost float64

	for _, re := range inputPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				tokensIn = v
				break
			}
		}
	}
	for _, re := range outputPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				tokensOut = v
				break
			}
		}
	}
	for _, re := range costPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				cost = v
				break
			}
		}
	}
	return tokensIn, tokensOut, cost
}
