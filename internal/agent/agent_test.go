package agent

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind     string
		wantName string
		wantErr  bool
	}{
		{"", "claude", false},
		{"claude", "claude", false},
		{"copilot", "copilot", false},
		{"gemini", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			a, err := New(tt.kind, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if err == nil && a.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", a.Name(), tt.wantName)
			}
		})
	}
}

func TestClaudeAgent_Available_CustomCommand(t *testing.T) {
	agent := &ClaudeAgent{Command: "nonexistent-claude-binary-xyz"}
	if agent.Available() {
		t.Error("Available() = true for nonexistent command, want false")
	}
}

func TestClaudeAgent_command(t *testing.T) {
	tests := []struct {
		name  string
		agent *ClaudeAgent
		want  string
	}{
		{"default command", &ClaudeAgent{}, "claude"},
		{"custom command", &ClaudeAgent{Command: "/usr/local/bin/claude"}, "/usr/local/bin/claude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.agent.command(); got != tt.want {
				t.Errorf("command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAgentArgs(t *testing.T) {
	claude := (&ClaudeAgent{}).args("fix it", RunOpts{Model: "opus"})
	wantClaude := []string{"--dangerously-skip-permissions", "--print", "--model", "opus", "fix it"}
	if !reflect.DeepEqual(claude, wantClaude) {
		t.Errorf("claude args = %v, want %v", claude, wantClaude)
	}

	copilot := (&CopilotAgent{}).args("fix it", RunOpts{})
	wantCopilot := []string{"-p", "fix it", "--allow-all-tools"}
	if !reflect.DeepEqual(copilot, wantCopilot) {
		t.Errorf("copilot args = %v, want %v", copilot, wantCopilot)
	}
}

func TestParseUsageFromOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		wantIn   int
		wantOut  int
		wantCost float64
	}{
		{"empty output", "", 0, 0, 0},
		{"input tokens format 1", "Input tokens: 1234", 1234, 0, 0},
		{"input tokens format 2", "1234 input tokens", 1234, 0, 0},
		{"output tokens format 1", "Output tokens: 5678", 0, 5678, 0},
		{"cost format 1", "Cost: $1.23", 0, 0, 1.23},
		{"cost format 2", "$2.50 total", 0, 0, 2.50},
		{"all metrics", "Input tokens: 1000\nOutput tokens: 2000\nCost: $0.50", 1000, 2000, 0.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotIn, gotOut, gotCost := parseUsageFromOutput(tt.output)
			if gotIn != tt.wantIn {
				t.Errorf("tokensIn = %d, want %d", gotIn, tt.wantIn)
			}
			if gotOut != tt.wantOut {
				t.Errorf("tokensOut = %d, want %d", gotOut, tt.wantOut)
			}
			if gotCost != tt.wantCost {
				t.Errorf("cost = %f, want %f", gotCost, tt.wantCost)
			}
		})
	}
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCLI_WorkingDirectoryAndStream(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()

	stream := make(chan string, 10)
	result, err := runCLI(context.Background(), "test", "sh",
		[]string{"-c", "echo changed > out.txt; echo one; echo two; echo 'Cost: $0.10' >&2"},
		RunOpts{Dir: dir, Stream: stream})
	if err != nil {
		t.Fatalf("runCLI() error = %v", err)
	}
	close(stream)

	if result.Output != "one\ntwo\n" {
		t.Errorf("Output = %q", result.Output)
	}
	if result.Cost != 0.10 {
		t.Errorf("Cost = %v, want 0.10", result.Cost)
	}
	var chunks []string
	for c := range stream {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Errorf("streamed %d chunks, want 2", len(chunks))
	}
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); err != nil {
		t.Errorf("command did not run in Dir: %v", err)
	}
}

func TestRunCLI_StreamLongLine(t *testing.T) {
	requireSh(t)
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}

	const size = 3_000_000
	stream := make(chan string, 4)
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := runCLI(context.Background(), "test", "sh",
			[]string{"-c", "head -c 3000000 /dev/zero | tr '\\0' a; echo; echo tail"},
			RunOpts{Dir: t.TempDir(), Stream: stream})
		done <- outcome{res, err}
	}()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("runCLI() blocked on a long output line")
	}
	if got.err != nil {
		t.Fatalf("runCLI() error = %v", got.err)
	}
	if len(got.res.Output) != size+len("\ntail\n") {
		t.Errorf("len(Output) = %d, want %d", len(got.res.Output), size+len("\ntail\n"))
	}
	if !strings.HasSuffix(got.res.Output, "tail\n") {
		t.Errorf("Output does not end with the line after the long one")
	}
	close(stream)
	var chunks int
	for range stream {
		chunks++
	}
	if chunks != 2 {
		t.Errorf("streamed %d chunks, want 2", chunks)
	}
}

func TestRunCLI_Failure(t *testing.T) {
	requireSh(t)

	_, err := runCLI(context.Background(), "test", "sh", []string{"-c", "echo boom >&2; exit 3"}, RunOpts{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("runCLI() error = %v, want *ExecutionError", err)
	}
	if execErr.Agent != "test" || execErr.Stderr != "boom" {
		t.Errorf("ExecutionError = %+v", execErr)
	}
	if !strings.Contains(err.Error(), "exited with error") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRunCLI_MissingBinary(t *testing.T) {
	_, err := runCLI(context.Background(), "test", "nonexistent-binary-xyz", nil, RunOpts{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("runCLI() error = %v, want *ExecutionError", err)
	}
}

func TestRunCLI_Timeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	start := time.Now()
	_, err := runCLI(context.Background(), "test", "sleep", []string{"10"}, RunOpts{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("runCLI() error = %v, want *ExecutionError", err)
	}
	if !strings.Contains(execErr.Message, "timed out") {
		t.Errorf("Message = %q, want timeout", execErr.Message)
	}
	if elapsed > time.Second {
		t.Errorf("runCLI() took %v, expected timeout around 100ms", elapsed)
	}
}

func TestRunCLI_ContextCancellation(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := runCLI(ctx, "test", "sleep", []string{"10"}, RunOpts{}); err == nil {
		t.Error("runCLI() with cancelled context should return error")
	}
}
