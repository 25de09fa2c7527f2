package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sigclaw/internal/constants"
	"sigclaw/internal/errors"
	"sigclaw/internal/models"

	"github.com/sirupsen/logrus"
)

// State of a runner: Idle → Running → {Success|TimedOut|Failed} → Idle.
// All terminal outcomes return to Idle; neither a timeout nor a failure
// affects reusability.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Config is the immutable per-conversation configuration of a Runner
type Config struct {
	ConversationID   string
	ConversationType models.ConversationType
	SystemPrompt     string
	Model            string
	AllowedTools     []string
	PermissionMode   string
	WorkingDir       string

	// OnSessionReset is invoked when a resume attempt is rejected and
	// the stale id discarded, so the owner can drop the persisted record.
	// May be nil.
	OnSessionReset func(staleSessionID string)
}

// TurnResult is the outcome of one agent exchange
type TurnResult struct {
	TimedOut  bool
	Response  string
	SessionID string
}

// Runner executes agent turns for a single conversation, tracking the
// resumable session id across calls. The router guarantees at most one
// RunTurn is in flight per runner.
type Runner struct {
	config   Config
	executor Executor
	logger   *logrus.Logger

	mu        sync.Mutex
	sessionID string
	state     State
	turns     int64
}

// NewRunner creates a runner for one conversation
func NewRunner(config Config, executor Executor, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		config:   config,
		executor: executor,
		logger:   logger,
		state:    StateIdle,
	}
}

// Initialize adopts a previously persisted session id, if any
func (r *Runner) Initialize(sessionID string) {
	r.mu.Lock()
	r.sessionID = sessionID
	r.mu.Unlock()
}

// SessionID returns the current resumable session id ("" when none)
func (r *Runner) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// State reports whether a turn is currently in flight
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close clears session state. The runner may still be reused afterwards;
// the next turn starts a fresh session.
func (r *Runner) Close() {
	r.mu.Lock()
	r.sessionID = ""
	r.mu.Unlock()
}

// RunTurn executes exactly one agent exchange for the queued batch, raced
// against timeout. On timeout the in-flight execution is abandoned, not
// cancelled: it keeps streaming in the background (still updating the
// session id) and only the wait is given up. Genuine execution failures
// propagate so the caller can log and move on; the runner stays usable.
func (r *Runner) RunTurn(ctx context.Context, batch string, timeout time.Duration) (TurnResult, error) {
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultTurnTimeoutSec) * time.Second
	}

	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		return TurnResult{}, fmt.Errorf("turn already in flight for %s", r.config.ConversationID)
	}
	r.state = StateRunning
	r.turns++
	resume := r.sessionID
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
	}()

	result, err := r.execute(ctx, batch, resume, timeout)
	if err != nil && resume != "" && errors.IsResumeError(err) {
		// The runtime no longer knows this session. Discard the stale id
		// and retry fresh; the caller never sees the difference.
		r.logger.WithFields(logrus.Fields{
			"conversation_id": r.config.ConversationID,
			"session_id":      resume,
		}).Warn("Session resume rejected, starting a fresh session")

		r.mu.Lock()
		r.sessionID = ""
		r.mu.Unlock()

		if r.config.OnSessionReset != nil {
			r.config.OnSessionReset(resume)
		}

		result, err = r.execute(ctx, batch, "", timeout)
	}
	return result, err
}

// execute runs one invocation and waits for its outcome or the deadline
func (r *Runner) execute(ctx context.Context, batch, resume string, timeout time.Duration) (TurnResult, error) {
	stream, err := r.executor.Execute(ctx, Invocation{
		Prompt:         batch,
		SystemPrompt:   r.config.SystemPrompt,
		Model:          r.config.Model,
		Resume:         resume,
		AllowedTools:   r.config.AllowedTools,
		PermissionMode: r.config.PermissionMode,
		WorkingDir:     r.config.WorkingDir,
	})
	if err != nil {
		return TurnResult{}, errors.NewAgentError(err, r.config.ConversationID)
	}

	outcome := make(chan turnOutcome, 1)
	go func() {
		outcome <- r.consume(stream, resume)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-outcome:
		if out.err != nil {
			return TurnResult{}, out.err
		}
		return TurnResult{Response: out.response, SessionID: r.SessionID()}, nil
	case <-timer.C:
		r.logger.WithFields(logrus.Fields{
			"conversation_id": r.config.ConversationID,
			"timeout":         timeout,
		}).Warn("Turn timed out, abandoning the in-flight execution")
		return TurnResult{TimedOut: true, SessionID: r.SessionID()}, nil
	}
}

type turnOutcome struct {
	response string
	err      error
}

// consume drains the event stream to its terminal result. Every event
// that carries a session id updates the stored one, which covers both
// brand-new and resumed sessions.
func (r *Runner) consume(stream Stream, resume string) turnOutcome {
	var response string
	var gotResult bool
	var resultErr error

	for event := range stream.Events() {
		if event.SessionID != "" {
			r.mu.Lock()
			r.sessionID = event.SessionID
			r.mu.Unlock()
		}

		if event.Type != EventTypeResult {
			continue
		}
		if event.Subtype == SubtypeSuccess && !event.IsError {
			response = event.Result
			gotResult = true
		} else {
			resultErr = r.classifyFailure(event.Result, event.Subtype, resume)
		}
	}

	if err := stream.Close(); err != nil {
		return turnOutcome{err: r.classifyFailure(err.Error(), "", resume)}
	}
	if resultErr != nil {
		return turnOutcome{err: resultErr}
	}
	if !gotResult {
		return turnOutcome{err: errors.New(errors.ErrCodeAgentResult, "event stream ended without a result")}
	}
	return turnOutcome{response: response}
}

// classifyFailure distinguishes stale-resume rejections from genuine
// runtime failures so RunTurn can recover the former transparently.
func (r *Runner) classifyFailure(detail, subtype, resume string) error {
	if resume != "" && isResumeRejection(detail) {
		return errors.NewResumeError(resume)
	}
	if subtype != "" {
		return errors.New(errors.ErrCodeAgentResult, fmt.Sprintf("turn failed with result subtype %q: %s", subtype, detail))
	}
	return errors.New(errors.ErrCodeAgentRuntime, detail)
}

func isResumeRejection(detail string) bool {
	lowered := strings.ToLower(detail)
	return strings.Contains(lowered, "no conversation found") ||
		strings.Contains(lowered, "session not found") ||
		strings.Contains(lowered, "unknown session")
}
