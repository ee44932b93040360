package agent

import (
	"context"
	"os/exec"
)

// CopilotAgent runs the GitHub Copilot CLI in non-interactive mode.
type CopilotAgent struct {
	// Command is the path to the copilot binary. Defaults to "copilot".
	Command string
}

func (a *CopilotAgent) Name() string {
	return "copilot"
}

func (a *CopilotAgent) Available() bool {
	_, err := exec.LookPath(a.command())
	return err == nil
}

func (a *CopilotAgent) Run(ctx context.Context, prompt string, opts RunOpts) (*Result, error) {
	return runCLI(ctx, a.Name(), a.command(), a.args(prompt, opts), opts)
}

func (a *CopilotAgent) args(prompt string, opts RunOpts) []string {
	args := []string{"-p", prompt, "--allow-all-tools"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

func (a *CopilotAgent) command() string {
	if a.Command != "" {
		return a.Command
	}
	return "copilot"
}
