// Package agent runs external code-generation CLIs against a working
// directory.
package agent

import (
	"context"
	"fmt"
	"time"
)

// Agent defines the interface for code-generation agents.
type Agent interface {
	// Name returns the agent's display name.
	Name() string

	// Available checks if the agent's CLI is installed and accessible.
	Available() bool

	// Run executes the agent with the given prompt and options. It blocks
	// until the agent exits. A non-nil error is an *ExecutionError.
	Run(ctx context.Context, prompt string, opts RunOpts) (*Result, error)
}

// RunOpts configures an agent run.
type RunOpts struct {
	// Dir is the working directory the agent mutates.
	Dir string

	// Model overrides the agent's default model when set.
	Model string

	// Stream receives chunks of output for real-time display.
	// If nil, output is only returned in Result.Output.
	Stream chan<- string

	// Timeout for the entire run. If zero, no timeout is applied
	// beyond any context deadline.
	Timeout time.Duration
}

// Result contains the output and metrics from an agent run.
type Result struct {
	// Output is the full text output from the agent.
	Output string

	// TokensIn is the number of input tokens (if available).
	TokensIn int

	// TokensOut is the number of output tokens (if available).
	TokensOut int

	// Cost is the estimated cost in USD (if available).
	Cost float64

	// Duration is how long the run took.
	Duration time.Duration
}

// ExecutionError reports that an agent failed or could not be started.
type ExecutionError struct {
	Agent   string
	Message string
	Stderr  string
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Agent, e.Message)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// New returns the agent for kind. An empty command uses the agent's
// default binary.
func New(kind, command string) (Agent, error) {
	switch kind {
	case "", "claude":
		return &ClaudeAgent{Command: command}, nil
	case "copilot":
		return &CopilotAgent{Command: command}, nil
	default:
		return nil, fmt.Errorf("unknown agent %q", kind)
	}
}
