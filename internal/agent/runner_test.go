package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	sigclawerrors "sigclaw/internal/errors"
	"sigclaw/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	events   chan StreamEvent
	closeErr error
}

// newFakeStream yields the given events and then ends
func newFakeStream(events []StreamEvent, closeErr error) *fakeStream {
	ch := make(chan StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &fakeStream{events: ch, closeErr: closeErr}
}

// newHangingStream never yields and never ends
func newHangingStream() *fakeStream {
	return &fakeStream{events: make(chan StreamEvent)}
}

func (s *fakeStream) Events() <-chan StreamEvent { return s.events }
func (s *fakeStream) Close() error               { return s.closeErr }

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []Invocation
	streams []Stream
	errs    []error
}

func (e *fakeExecutor) Execute(ctx context.Context, inv Invocation) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := len(e.calls)
	e.calls = append(e.calls, inv)
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i < len(e.streams) {
		return e.streams[i], nil
	}
	return newHangingStream(), nil
}

func (e *fakeExecutor) invocations() []Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Invocation(nil), e.calls...)
}

func testRunner(executor Executor) *Runner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRunner(Config{
		ConversationID:   "+15551234567",
		ConversationType: models.ConversationDM,
		SystemPrompt:     "you are a helpful assistant",
		Model:            "claude-sonnet-4-5",
	}, executor, logger)
}

func successEvents(sessionID, response string) []StreamEvent {
	return []StreamEvent{
		{Type: EventTypeSystem, Subtype: SubtypeInit, SessionID: sessionID},
		{Type: EventTypeAssistant, SessionID: sessionID, Message: &AssistantMessage{
			Role:    "assistant",
			Content: []ContentBlock{{Type: "text", Text: response}},
		}},
		{Type: EventTypeResult, Subtype: SubtypeSuccess, SessionID: sessionID, Result: response},
	}
}

func TestRunTurnSuccess(t *testing.T) {
	executor := &fakeExecutor{
		streams: []Stream{newFakeStream(successEvents("sess-1", "hello back"), nil)},
	}
	r := testRunner(executor)

	result, err := r.RunTurn(context.Background(), "[10:00] Alice: hi", 0)
	require.NoError(t, err)

	assert.False(t, result.TimedOut)
	assert.Equal(t, "hello back", result.Response)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, "sess-1", r.SessionID())
	assert.Equal(t, StateIdle, r.State())

	invs := executor.invocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "[10:00] Alice: hi", invs[0].Prompt)
	assert.Empty(t, invs[0].Resume)
}

func TestRunTurnResumesKnownSession(t *testing.T) {
	executor := &fakeExecutor{
		streams: []Stream{newFakeStream(successEvents("sess-2", "resumed reply"), nil)},
	}
	r := testRunner(executor)
	r.Initialize("sess-2")

	result, err := r.RunTurn(context.Background(), "hi again", 0)
	require.NoError(t, err)

	assert.Equal(t, "resumed reply", result.Response)
	assert.Equal(t, "sess-2", executor.invocations()[0].Resume)
}

func TestRunTurnCustomTimeout(t *testing.T) {
	executor := &fakeExecutor{streams: []Stream{newHangingStream()}}
	r := testRunner(executor)

	start := time.Now()
	result, err := r.RunTurn(context.Background(), "hi", 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Empty(t, result.Response)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Equal(t, StateIdle, r.State())
}

func TestRunTurnTimedOutRunnerStaysUsable(t *testing.T) {
	executor := &fakeExecutor{
		streams: []Stream{
			newHangingStream(),
			newFakeStream(successEvents("sess-3", "still alive"), nil),
		},
	}
	r := testRunner(executor)

	result, err := r.RunTurn(context.Background(), "first", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.TimedOut)

	result, err = r.RunTurn(context.Background(), "second", 0)
	require.NoError(t, err)
	assert.Equal(t, "still alive", result.Response)
}

func TestRunTurnExecutionErrorPropagatesAndRunnerRecovers(t *testing.T) {
	executor := &fakeExecutor{
		streams: []Stream{
			newFakeStream(nil, errors.New("agent process failed: exit status 1")),
			newFakeStream(successEvents("sess-4", "recovered"), nil),
		},
	}
	r := testRunner(executor)

	_, err := r.RunTurn(context.Background(), "first", 0)
	require.Error(t, err)

	result, err := r.RunTurn(context.Background(), "second", 0)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Response)
}

func TestRunTurnStaleResumeFallsBackToFreshSession(t *testing.T) {
	staleEvents := []StreamEvent{
		{Type: EventTypeResult, Subtype: "error_during_execution", IsError: true,
			Result: "No conversation found with session ID sess-stale"},
	}
	executor := &fakeExecutor{
		streams: []Stream{
			newFakeStream(staleEvents, nil),
			newFakeStream(successEvents("sess-fresh", "fresh reply"), nil),
		},
	}
	r := testRunner(executor)
	r.Initialize("sess-stale")

	result, err := r.RunTurn(context.Background(), "hi", 0)
	require.NoError(t, err)

	assert.Equal(t, "fresh reply", result.Response)
	assert.Equal(t, "sess-fresh", r.SessionID())

	invs := executor.invocations()
	require.Len(t, invs, 2)
	assert.Equal(t, "sess-stale", invs[0].Resume)
	assert.Empty(t, invs[1].Resume)
}

func TestRunTurnStaleResumeNotifiesReset(t *testing.T) {
	staleEvents := []StreamEvent{
		{Type: EventTypeResult, Subtype: "error_during_execution", IsError: true,
			Result: "No conversation found with session ID sess-stale"},
	}
	executor := &fakeExecutor{
		streams: []Stream{
			newFakeStream(staleEvents, nil),
			newFakeStream(successEvents("sess-fresh", "fresh reply"), nil),
		},
	}

	var resets []string
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := NewRunner(Config{
		ConversationID: "+15551234567",
		OnSessionReset: func(staleSessionID string) { resets = append(resets, staleSessionID) },
	}, executor, logger)
	r.Initialize("sess-stale")

	_, err := r.RunTurn(context.Background(), "hi", 0)
	require.NoError(t, err)

	// Notified once, with the rejected id, before the fresh retry runs.
	assert.Equal(t, []string{"sess-stale"}, resets)
}

func TestRunTurnNonSuccessResultIsFailure(t *testing.T) {
	events := []StreamEvent{
		{Type: EventTypeResult, Subtype: "error_max_turns", IsError: true, Result: "ran out of turns"},
	}
	executor := &fakeExecutor{streams: []Stream{newFakeStream(events, nil)}}
	r := testRunner(executor)

	_, err := r.RunTurn(context.Background(), "hi", 0)
	require.Error(t, err)
	assert.Equal(t, sigclawerrors.ErrCodeAgentResult, sigclawerrors.GetCode(err))
}

func TestRunTurnStreamWithoutResultIsFailure(t *testing.T) {
	events := []StreamEvent{
		{Type: EventTypeSystem, Subtype: SubtypeInit, SessionID: "sess-5"},
	}
	executor := &fakeExecutor{streams: []Stream{newFakeStream(events, nil)}}
	r := testRunner(executor)

	_, err := r.RunTurn(context.Background(), "hi", 0)
	require.Error(t, err)
	// The session id from the partial stream is still adopted.
	assert.Equal(t, "sess-5", r.SessionID())
}

func TestCloseClearsSessionState(t *testing.T) {
	executor := &fakeExecutor{}
	r := testRunner(executor)
	r.Initialize("sess-6")

	r.Close()
	assert.Empty(t, r.SessionID())
}

func TestRunTurnSpawnErrorPropagates(t *testing.T) {
	executor := &fakeExecutor{errs: []error{errors.New("binary not found")}}
	r := testRunner(executor)

	_, err := r.RunTurn(context.Background(), "hi", 0)
	require.Error(t, err)
	assert.Equal(t, sigclawerrors.ErrCodeAgentRuntime, sigclawerrors.GetCode(err))
}
