package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sigclaw/internal/agent"
	"sigclaw/internal/mailbox"
	"sigclaw/internal/models"
	"sigclaw/internal/prompt"
	"sigclaw/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStream struct {
	events chan agent.StreamEvent
}

func (s *scriptedStream) Events() <-chan agent.StreamEvent { return s.events }
func (s *scriptedStream) Close() error                     { return nil }

// completedStream yields a full success exchange and ends
func completedStream(sessionID, response string) *scriptedStream {
	events := make(chan agent.StreamEvent, 2)
	events <- agent.StreamEvent{Type: agent.EventTypeSystem, Subtype: agent.SubtypeInit, SessionID: sessionID}
	events <- agent.StreamEvent{Type: agent.EventTypeResult, Subtype: agent.SubtypeSuccess, SessionID: sessionID, Result: response}
	close(events)
	return &scriptedStream{events: events}
}

// failedStream yields a failing result event and ends
func failedStream(detail string) *scriptedStream {
	events := make(chan agent.StreamEvent, 1)
	events <- agent.StreamEvent{Type: agent.EventTypeResult, Subtype: "error_during_execution", IsError: true, Result: detail}
	close(events)
	return &scriptedStream{events: events}
}

// openStream stays open until the test finishes it
func openStream() *scriptedStream {
	return &scriptedStream{events: make(chan agent.StreamEvent)}
}

func (s *scriptedStream) finish(sessionID, response string) {
	s.events <- agent.StreamEvent{Type: agent.EventTypeResult, Subtype: agent.SubtypeSuccess, SessionID: sessionID, Result: response}
	close(s.events)
}

type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []agent.Invocation
	handler func(call int, inv agent.Invocation) (agent.Stream, error)
}

func (e *scriptedExecutor) Execute(_ context.Context, inv agent.Invocation) (agent.Stream, error) {
	e.mu.Lock()
	call := len(e.calls)
	e.calls = append(e.calls, inv)
	handler := e.handler
	e.mu.Unlock()
	return handler(call, inv)
}

func (e *scriptedExecutor) invocations() []agent.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]agent.Invocation(nil), e.calls...)
}

type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *recordingSender) Send(_ context.Context, conversationID string, _ models.ConversationType, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, conversationID+": "+text)
	return nil
}

func (s *recordingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sends...)
}

func dmMessage(conversationID, text string) *models.ParsedMessage {
	return &models.ParsedMessage{
		ConversationID:   conversationID,
		ConversationType: models.ConversationDM,
		SenderID:         conversationID,
		SenderName:       "Alice",
		Timestamp:        time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		Variant:          models.VariantText,
		Text:             text,
	}
}

func newTestRouter(t *testing.T, executor agent.Executor, sender *recordingSender) (*Router, *session.Store) {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), discardLogger())

	rt := NewRouter(Config{
		Agent:    models.AgentConfig{Model: "claude-sonnet-4-5", TurnTimeoutSec: 5},
		Sessions: store,
		Executor: executor,
		Names:    &fakeNames{},
		Prompts:  prompt.NewProvider("Claw", "Maya"),
		Sender:   sender,
	}, discardLogger())

	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(rt.Stop)
	return rt, store
}

func TestRouterDeliversResponse(t *testing.T) {
	executor := &scriptedExecutor{handler: func(int, agent.Invocation) (agent.Stream, error) {
		return completedStream("sess-1", "hello back"), nil
	}}
	sender := &recordingSender{}
	rt, _ := newTestRouter(t, executor, sender)

	rt.HandleMessage(context.Background(), dmMessage("+15551234567", "hi"))

	assert.Eventually(t, func() bool {
		return len(sender.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "+15551234567: hello back", sender.all()[0])

	invs := executor.invocations()
	require.Len(t, invs, 1)
	assert.Contains(t, invs[0].Prompt, "[10:00] Alice (+15551234567): hi")
	assert.Contains(t, invs[0].SystemPrompt, "You are Claw")
}

func TestRouterBatchesMessagesArrivingMidTurn(t *testing.T) {
	first := openStream()
	executor := &scriptedExecutor{handler: func(call int, _ agent.Invocation) (agent.Stream, error) {
		if call == 0 {
			return first, nil
		}
		return completedStream("sess-1", "batch reply"), nil
	}}
	sender := &recordingSender{}
	rt, _ := newTestRouter(t, executor, sender)
	ctx := context.Background()

	rt.HandleMessage(ctx, dmMessage("+15551234567", "first"))
	assert.Eventually(t, func() bool {
		return len(executor.invocations()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// These arrive while the first turn is in flight and must coalesce.
	rt.HandleMessage(ctx, dmMessage("+15551234567", "second"))
	rt.HandleMessage(ctx, dmMessage("+15551234567", "third"))

	first.finish("sess-1", "first reply")

	assert.Eventually(t, func() bool {
		return len(executor.invocations()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	invs := executor.invocations()
	assert.Contains(t, invs[1].Prompt, "second")
	assert.Contains(t, invs[1].Prompt, "third")
	assert.Equal(t, "sess-1", invs[1].Resume)

	assert.Eventually(t, func() bool {
		return len(sender.all()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rt.ConversationCount())
}

func TestRouterSeedsPersistedSession(t *testing.T) {
	executor := &scriptedExecutor{handler: func(int, agent.Invocation) (agent.Stream, error) {
		return completedStream("sess-seed", "resumed"), nil
	}}
	sender := &recordingSender{}

	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), discardLogger())
	store.Save("+15551234567", models.SessionRecord{Type: models.ConversationDM, SessionID: "sess-seed"})

	rt := NewRouter(Config{
		Agent:    models.AgentConfig{TurnTimeoutSec: 5},
		Sessions: store,
		Executor: executor,
		Sender:   sender,
	}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	rt.HandleMessage(context.Background(), dmMessage("+15551234567", "hi again"))

	assert.Eventually(t, func() bool {
		return len(executor.invocations()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "sess-seed", executor.invocations()[0].Resume)
}

func TestRouterPersistsSessionAfterTurn(t *testing.T) {
	executor := &scriptedExecutor{handler: func(int, agent.Invocation) (agent.Stream, error) {
		return completedStream("sess-new", "ok"), nil
	}}
	sender := &recordingSender{}
	rt, store := newTestRouter(t, executor, sender)

	rt.HandleMessage(context.Background(), dmMessage("+15551234567", "hi"))

	assert.Eventually(t, func() bool {
		record, ok := store.Get("+15551234567")
		return ok && record.SessionID == "sess-new"
	}, 2*time.Second, 10*time.Millisecond)

	record, _ := store.Get("+15551234567")
	assert.Equal(t, models.ConversationDM, record.Type)
}

func TestRouterIsolatesFailuresPerConversation(t *testing.T) {
	executor := &scriptedExecutor{handler: func(_ int, inv agent.Invocation) (agent.Stream, error) {
		if inv.Prompt != "" && inv.Resume == "" && containsLine(inv.Prompt, "broken") {
			return nil, errors.New("agent spawn failed")
		}
		return completedStream("sess-b", "fine here"), nil
	}}
	sender := &recordingSender{}
	rt, _ := newTestRouter(t, executor, sender)
	ctx := context.Background()

	rt.HandleMessage(ctx, dmMessage("+15550000001", "broken"))
	rt.HandleMessage(ctx, dmMessage("+15550000002", "healthy"))

	assert.Eventually(t, func() bool {
		return len(sender.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "+15550000002: fine here", sender.all()[0])
	assert.Equal(t, 2, rt.ConversationCount())
}

func TestRouterGroupPromptCarriesGroupName(t *testing.T) {
	executor := &scriptedExecutor{handler: func(int, agent.Invocation) (agent.Stream, error) {
		return completedStream("sess-g", "group reply"), nil
	}}
	sender := &recordingSender{}

	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), discardLogger())
	rt := NewRouter(Config{
		Agent:    models.AgentConfig{TurnTimeoutSec: 5},
		Sessions: store,
		Executor: executor,
		Names:    &fakeNames{groups: map[string]string{"group-abc": "Book Club"}},
		Prompts:  prompt.NewProvider("Claw", "Maya"),
		Sender:   sender,
	}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	rt.HandleMessage(context.Background(), &models.ParsedMessage{
		ConversationID:   "group-abc",
		ConversationType: models.ConversationGroup,
		SenderID:         "+15551234567",
		SenderName:       "Alice",
		Timestamp:        time.Now(),
		Variant:          models.VariantText,
		Text:             "hi all",
	})

	assert.Eventually(t, func() bool {
		return len(executor.invocations()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, executor.invocations()[0].SystemPrompt, `"Book Club"`)
}

func TestRouterTimedOutTurnSendsNothing(t *testing.T) {
	executor := &scriptedExecutor{handler: func(call int, _ agent.Invocation) (agent.Stream, error) {
		if call == 0 {
			return openStream(), nil
		}
		return completedStream("sess-r", "recovered"), nil
	}}
	sender := &recordingSender{}

	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), discardLogger())
	rt := NewRouter(Config{
		Agent:    models.AgentConfig{TurnTimeoutSec: 1},
		Sessions: store,
		Executor: executor,
		Sender:   sender,
	}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()
	ctx := context.Background()

	rt.HandleMessage(ctx, dmMessage("+15551234567", "slow one"))

	// Wait out the 1s turn timeout, then confirm the conversation recovers.
	assert.Eventually(t, func() bool {
		return len(executor.invocations()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(1200 * time.Millisecond)
	assert.Empty(t, sender.all())

	rt.HandleMessage(ctx, dmMessage("+15551234567", "next"))
	assert.Eventually(t, func() bool {
		return len(sender.all()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "+15551234567: recovered", sender.all()[0])
}

func TestRouterRemovesStaleSessionRecord(t *testing.T) {
	executor := &scriptedExecutor{handler: func(_ int, inv agent.Invocation) (agent.Stream, error) {
		if inv.Resume == "sess-stale" {
			return failedStream("No conversation found with session ID sess-stale"), nil
		}
		return failedStream("agent exited unexpectedly"), nil
	}}
	sender := &recordingSender{}

	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), discardLogger())
	store.Save("+15551234567", models.SessionRecord{Type: models.ConversationDM, SessionID: "sess-stale"})

	rt := NewRouter(Config{
		Agent:    models.AgentConfig{TurnTimeoutSec: 5},
		Sessions: store,
		Executor: executor,
		Sender:   sender,
	}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	rt.HandleMessage(context.Background(), dmMessage("+15551234567", "hi"))

	// The fresh retry fails too, so nothing overwrites the record; it has
	// to have been removed the moment the resume was rejected.
	assert.Eventually(t, func() bool {
		_, ok := store.Get("+15551234567")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sender.all())
}

// testConversation builds the per-conversation unit without a worker so
// runPending can be driven directly
func testConversation(executor agent.Executor) *conversation {
	conv := &conversation{
		mailbox: mailbox.New("+15551234567", models.ConversationDM),
		runner:  agent.NewRunner(agent.Config{ConversationID: "+15551234567"}, executor, discardLogger()),
		notify:  make(chan struct{}, 1),
	}
	conv.mailbox.OnWake(func() {
		select {
		case conv.notify <- struct{}{}:
		default:
		}
	})
	return conv
}

func TestRunPendingRewakesMessagesEnqueuedWhileBusy(t *testing.T) {
	first := openStream()
	started := make(chan struct{})
	executor := &scriptedExecutor{handler: func(call int, _ agent.Invocation) (agent.Stream, error) {
		if call == 0 {
			close(started)
			return first, nil
		}
		return completedStream("sess-1", "later reply"), nil
	}}

	rt := NewRouter(Config{Agent: models.AgentConfig{TurnTimeoutSec: 5}, Executor: executor}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	conv := testConversation(executor)
	conv.mailbox.Enqueue(models.FormattedMessage{Timestamp: at(10, 0), SenderName: "Alice", Text: "first"})

	done := make(chan struct{})
	go func() {
		rt.runPending(conv)
		close(done)
	}()

	<-started
	// Lands while the busy flag is held, so its own Wake is a no-op.
	conv.mailbox.Enqueue(models.FormattedMessage{Timestamp: at(10, 1), SenderName: "Alice", Text: "second"})
	conv.mailbox.Wake()
	assert.Empty(t, conv.notify)

	first.finish("sess-1", "first reply")
	<-done

	// The closing wake of the cycle re-notifies the queued message.
	select {
	case <-conv.notify:
	case <-time.After(time.Second):
		t.Fatal("message enqueued mid-turn was stranded without a wake")
	}
	assert.Equal(t, 1, conv.mailbox.Len())
}

func TestRunPendingSpuriousWakeIsHarmless(t *testing.T) {
	executor := &scriptedExecutor{handler: func(int, agent.Invocation) (agent.Stream, error) {
		t.Error("no turn should run for an empty mailbox")
		return completedStream("sess", "unexpected"), nil
	}}

	rt := NewRouter(Config{Agent: models.AgentConfig{TurnTimeoutSec: 5}, Executor: executor}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	conv := testConversation(executor)
	rt.runPending(conv)

	assert.False(t, conv.mailbox.IsBusy())
	assert.Empty(t, conv.notify)
}

func TestRouterDoubleStartErrors(t *testing.T) {
	rt := NewRouter(Config{}, discardLogger())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	assert.Error(t, rt.Start(context.Background()))
}

func TestRouterDropsMessagesWhenStopped(t *testing.T) {
	executor := &scriptedExecutor{handler: func(int, agent.Invocation) (agent.Stream, error) {
		return completedStream("sess", "reply"), nil
	}}
	rt := NewRouter(Config{Executor: executor}, discardLogger())

	rt.HandleMessage(context.Background(), dmMessage("+15551234567", "hi"))

	assert.Equal(t, 0, rt.ConversationCount())
}

func containsLine(prompt, text string) bool {
	return strings.Contains(prompt, text)
}
