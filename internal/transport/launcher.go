package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Process is a running receive-loop child
type Process interface {
	Stdout() io.Reader
	Wait() error
}

// Launcher spawns receive-loop processes. The production implementation
// wraps signal-cli; tests inject pipes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// CLILauncher spawns `signal-cli -a <account> -o json receive` with an
// unbounded timeout, producing one JSON envelope per stdout line.
type CLILauncher struct {
	CLIPath string
	Account string
}

// Launch starts the receive process bound to ctx; cancelling ctx kills it
func (l *CLILauncher) Launch(ctx context.Context) (Process, error) {
	cmd := exec.CommandContext(ctx, l.CLIPath,
		"-a", l.Account,
		"-o", "json",
		"receive",
		"--timeout", "-1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.CLIPath, err)
	}

	return &cliProcess{cmd: cmd, stdout: stdout}, nil
}

type cliProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *cliProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *cliProcess) Wait() error {
	return p.cmd.Wait()
}

// exitCodeOf extracts the process exit code from a Wait error
func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
