package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"sigclaw/internal/constants"

	"github.com/sirupsen/logrus"
)

// CLIExecutor invokes the agent CLI in print mode with stream-json
// output, one event per stdout line. The prompt is fed through stdin so
// batch size never hits argv limits.
type CLIExecutor struct {
	Binary string
	Logger *logrus.Logger
}

// NewCLIExecutor creates an executor for the given agent binary
func NewCLIExecutor(binary string, logger *logrus.Logger) *CLIExecutor {
	if binary == "" {
		binary = constants.DefaultAgentBinary
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CLIExecutor{Binary: binary, Logger: logger}
}

// Execute starts one agent invocation and streams its events
func (e *CLIExecutor) Execute(ctx context.Context, inv Invocation) (Stream, error) {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
	}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	if inv.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", inv.SystemPrompt)
	}
	if inv.Resume != "" {
		args = append(args, "--resume", inv.Resume)
	}
	if len(inv.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(inv.AllowedTools, ","))
	}
	if inv.PermissionMode != "" {
		args = append(args, "--permission-mode", inv.PermissionMode)
	}

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	if inv.WorkingDir != "" {
		cmd.Dir = inv.WorkingDir
	}
	cmd.Stdin = strings.NewReader(inv.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.Binary, err)
	}

	stream := &cliStream{
		events: make(chan StreamEvent, 16),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(stream.events)
		defer close(stream.done)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), constants.DefaultLineBufferBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var event StreamEvent
			if err := json.Unmarshal(line, &event); err != nil {
				e.Logger.WithError(err).Debug("Skipping undecodable runtime event")
				continue
			}
			stream.events <- event
		}

		if err := cmd.Wait(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			stream.err = fmt.Errorf("agent process failed: %s", msg)
		}
	}()

	return stream, nil
}

type cliStream struct {
	events chan StreamEvent
	done   chan struct{}
	err    error
}

func (s *cliStream) Events() <-chan StreamEvent {
	return s.events
}

func (s *cliStream) Close() error {
	<-s.done
	return s.err
}
