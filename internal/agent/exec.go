package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// runCLI executes bin with args in opts.Dir, streaming stdout lines when
// requested, and maps failures to *ExecutionError.
func runCLI(ctx context.Context, name, bin string, args []string, opts RunOpts) (*Result, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = opts.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	fail := func(err error) (*Result, error) {
		e := &ExecutionError{Agent: name, Err: err, Stderr: strings.TrimSpace(stderr.String())}
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			e.Message = fmt.Sprintf("timed out after %v", opts.Timeout)
		case errors.Is(ctx.Err(), context.Canceled):
			e.Message = "cancelled"
		default:
			e.Message = fmt.Sprintf("exited with error: %v", err)
		}
		return nil, e
	}

	if opts.Stream != nil {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, &ExecutionError{Agent: name, Message: "create stdout pipe", Err: err}
		}
		if err := cmd.Start(); err != nil {
			return fail(err)
		}

		// Drain every byte before Wait; lines have no length limit.
		reader := bufio.NewReader(stdoutPipe)
		var readErr error
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				stdout.WriteString(line)
				select {
				case opts.Stream <- line:
				case <-ctx.Done():
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
				}
				break
			}
		}
		if err := cmd.Wait(); err != nil {
			return fail(err)
		}
		if readErr != nil {
			return nil, &ExecutionError{Agent: name, Message: "reading output", Err: readErr}
		}
	} else {
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			return fail(err)
		}
	}

	tokensIn, tokensOut, cost := parseUsageFromOutput(stderr.String())
	return &Result{
		Output:    stdout.String(),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      cost,
		Duration:  time.Since(start),
	}, nil
}
