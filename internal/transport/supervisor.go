package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sigclaw/internal/constants"
	"sigclaw/internal/errors"
	"sigclaw/internal/metrics"
	"sigclaw/internal/models"
	"sigclaw/internal/retry"

	"github.com/sirupsen/logrus"
)

// MessageHandler receives each valid parsed message in arrival order
type MessageHandler func(*models.ParsedMessage)

// ErrorHandler receives recoverable transport problems (parse failures,
// spawn errors). The stream continues after every call.
type ErrorHandler func(error)

// SupervisorConfig configures a Supervisor
type SupervisorConfig struct {
	Account   string
	Launcher  Launcher
	Schedule  *retry.RestartSchedule
	OnMessage MessageHandler
	OnError   ErrorHandler
	Logger    *logrus.Logger
}

// Supervisor owns the external receive-loop process and keeps it alive.
// The receive loop is specified to run indefinitely, so every exit — clean
// or not — is treated as a failure and restarted after a backoff delay.
type Supervisor struct {
	config   SupervisorConfig
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex
	restarts atomic.Int64
	received atomic.Int64
	dropped  atomic.Int64
}

// NewSupervisor creates a transport supervisor
func NewSupervisor(config SupervisorConfig) *Supervisor {
	if config.Schedule == nil {
		config.Schedule = retry.NewRestartSchedule(
			time.Duration(constants.DefaultRestartInitialDelaySec)*time.Second,
			time.Duration(constants.DefaultRestartMaxDelaySec)*time.Second,
		)
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Supervisor{config: config}
}

// Start spawns the receive loop in the background
func (sp *Supervisor) Start(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.running {
		return fmt.Errorf("transport supervisor is already running")
	}

	sp.ctx, sp.cancel = context.WithCancel(ctx)
	sp.running = true

	sp.wg.Add(1)
	go sp.runLoop()

	sp.config.Logger.WithField("account", sp.config.Account).Info("Transport supervisor started")
	return nil
}

// Stop cancels any pending restart, kills the child, and waits for the
// run loop to exit. Exits observed after Stop are ignored.
func (sp *Supervisor) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.running {
		return
	}

	sp.config.Logger.Info("Stopping transport supervisor...")
	sp.cancel()
	sp.wg.Wait()
	sp.running = false
	sp.config.Logger.Info("Transport supervisor stopped")
}

// IsRunning reports whether the supervisor is active
func (sp *Supervisor) IsRunning() bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.running
}

// Restarts reports how many times the receive process has been restarted
func (sp *Supervisor) Restarts() int64 {
	return sp.restarts.Load()
}

// Received reports how many messages have been delivered to OnMessage
func (sp *Supervisor) Received() int64 {
	return sp.received.Load()
}

// runLoop spawns, consumes, and restarts the receive process forever
func (sp *Supervisor) runLoop() {
	defer sp.wg.Done()

	for {
		if sp.ctx.Err() != nil {
			return
		}

		proc, err := sp.config.Launcher.Launch(sp.ctx)
		if err != nil {
			// Spawn failures take the same close/backoff path as exits,
			// but are additionally surfaced through OnError.
			sp.reportError(errors.Wrap(err, errors.ErrCodeTransportProcess, "failed to spawn receive process"))
		} else {
			sp.consume(proc)
			exitCode := 0
			if werr := proc.Wait(); werr != nil {
				exitCode = exitCodeOf(werr)
			}
			if sp.ctx.Err() != nil {
				return
			}
			sp.config.Logger.WithField("exit_code", exitCode).Warn("Receive process exited, scheduling restart")
		}

		delay := sp.config.Schedule.Next()
		sp.restarts.Add(1)
		metrics.IncrementCounter(metrics.MetricTransportRestarts, nil)
		sp.config.Logger.WithField("delay", delay).Info("Restarting receive process after backoff")

		select {
		case <-sp.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consume reads complete stdout lines until the stream ends
func (sp *Supervisor) consume(proc Process) {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 64*1024), constants.DefaultLineBufferBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		sp.HandleLine(scanner.Bytes(), lineNo)
	}
	if err := scanner.Err(); err != nil && sp.ctx.Err() == nil {
		sp.config.Logger.WithError(err).Warn("Receive stream read error")
	}
}

// HandleLine decodes and routes a single transport line. Decode failures
// are reported and skipped; the stream never stops on one bad line.
func (sp *Supervisor) HandleLine(line []byte, lineNo int) {
	if len(line) == 0 {
		return
	}

	var wrapper EnvelopeWrapper
	if err := json.Unmarshal(line, &wrapper); err != nil {
		sp.reportError(errors.NewParseError(err, lineNo))
		return
	}

	// A healthy stream resets the restart schedule to its initial delay.
	sp.config.Schedule.Reset()

	msg := ParseEnvelope(&wrapper)
	if msg == nil {
		sp.dropped.Add(1)
		metrics.IncrementCounter(metrics.MetricMessagesDropped, map[string]string{"reason": "unroutable"})
		return
	}

	if msg.SenderID == sp.config.Account {
		// The transport re-observes our own outbound replies; routing them
		// would trigger a turn for every response we send.
		sp.dropped.Add(1)
		metrics.IncrementCounter(metrics.MetricMessagesDropped, map[string]string{"reason": "self"})
		return
	}

	sp.received.Add(1)
	if sp.config.OnMessage != nil {
		sp.config.OnMessage(msg)
	}
}

func (sp *Supervisor) reportError(err error) {
	sp.config.Logger.WithError(err).Warn("Transport error")
	if sp.config.OnError != nil {
		sp.config.OnError(err)
	}
}
