// Package router composes the per-conversation pieces: one mailbox, one
// turn runner, and one worker goroutine per conversation, created lazily
// on first message and kept for the process lifetime.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sigclaw/internal/agent"
	"sigclaw/internal/mailbox"
	"sigclaw/internal/metrics"
	"sigclaw/internal/models"
	"sigclaw/internal/privacy"
	"sigclaw/internal/session"
	"sigclaw/internal/tracing"
	"sigclaw/internal/transport"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// PromptProvider supplies the per-conversation system prompt
type PromptProvider interface {
	SystemPrompt(convType models.ConversationType, groupName string) string
}

// Config wires the router's collaborators
type Config struct {
	Agent       models.AgentConfig
	Sessions    *session.Store
	Executor    agent.Executor
	Names       NameResolver
	Attachments AttachmentProcessor
	Prompts     PromptProvider
	Sender      transport.Sender
}

// conversation is the per-id unit: a mailbox, a runner, and a worker
// notified through a single-slot channel
type conversation struct {
	mailbox *mailbox.Mailbox
	runner  *agent.Runner
	notify  chan struct{}
}

// Router dispatches parsed messages to conversation workers and runs
// the busy/wake turn loop for each.
type Router struct {
	config    Config
	formatter *Formatter
	logger    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	conversations map[string]*conversation
	running       bool
}

// NewRouter creates a router; Start must be called before HandleMessage
func NewRouter(config Config, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		config:        config,
		formatter:     NewFormatter(config.Names, config.Attachments, logger),
		logger:        logger,
		conversations: make(map[string]*conversation),
	}
}

// Start prepares the router for dispatch
func (rt *Router) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.running {
		return fmt.Errorf("router already started")
	}
	rt.ctx, rt.cancel = context.WithCancel(ctx)
	rt.running = true
	return nil
}

// Stop shuts down all conversation workers and waits for them. In-flight
// turns are abandoned the same way a timeout abandons them.
func (rt *Router) Stop() {
	rt.mu.Lock()
	if !rt.running {
		rt.mu.Unlock()
		return
	}
	rt.running = false
	rt.cancel()
	rt.mu.Unlock()

	rt.wg.Wait()
}

// ConversationCount reports how many conversations have materialized
func (rt *Router) ConversationCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.conversations)
}

// HandleMessage formats and enqueues one parsed message, then wakes the
// conversation's worker. Safe to call from the supervisor's read loop;
// nothing here blocks on the turn.
func (rt *Router) HandleMessage(ctx context.Context, msg *models.ParsedMessage) {
	rt.mu.Lock()
	if !rt.running {
		rt.mu.Unlock()
		rt.logger.WithField("conversation_id", privacy.MaskConversationID(msg.ConversationID)).Warn("Router not running, dropping message")
		return
	}
	rt.mu.Unlock()

	formatted := rt.formatter.Format(ctx, msg)
	conv := rt.conversationFor(ctx, msg)

	conv.mailbox.Enqueue(formatted)
	metrics.IncrementCounter(metrics.MetricMessagesReceived, map[string]string{"type": string(msg.ConversationType)})
	conv.mailbox.Wake()
}

// conversationFor returns the conversation for the message's id,
// materializing the mailbox, runner, and worker on first contact.
func (rt *Router) conversationFor(ctx context.Context, msg *models.ParsedMessage) *conversation {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if conv, ok := rt.conversations[msg.ConversationID]; ok {
		return conv
	}

	conv := &conversation{
		mailbox: mailbox.New(msg.ConversationID, msg.ConversationType),
		runner:  rt.newRunner(ctx, msg),
		notify:  make(chan struct{}, 1),
	}
	conv.mailbox.OnWake(func() {
		select {
		case conv.notify <- struct{}{}:
		default:
		}
	})
	rt.conversations[msg.ConversationID] = conv

	rt.wg.Add(1)
	go rt.worker(conv)

	metrics.SetGauge(metrics.MetricActiveWorkers, float64(len(rt.conversations)), nil)
	rt.logger.WithFields(logrus.Fields{
		"conversation_id":   privacy.MaskConversationID(msg.ConversationID),
		"conversation_type": msg.ConversationType,
	}).Info("Conversation materialized")

	return conv
}

// newRunner builds the conversation's runner, seeding it with any
// persisted session id so the thread resumes across restarts
func (rt *Router) newRunner(ctx context.Context, msg *models.ParsedMessage) *agent.Runner {
	var groupName string
	if msg.ConversationType == models.ConversationGroup && rt.config.Names != nil {
		groupName = rt.config.Names.GetGroupName(ctx, msg.ConversationID)
	}

	var systemPrompt string
	if rt.config.Prompts != nil {
		systemPrompt = rt.config.Prompts.SystemPrompt(msg.ConversationType, groupName)
	}

	conversationID := msg.ConversationID
	convType := msg.ConversationType
	runner := agent.NewRunner(agent.Config{
		ConversationID:   conversationID,
		ConversationType: convType,
		SystemPrompt:     systemPrompt,
		Model:            rt.config.Agent.Model,
		AllowedTools:     rt.config.Agent.AllowedTools,
		PermissionMode:   rt.config.Agent.PermissionMode,
		WorkingDir:       rt.config.Agent.WorkingDir,
		OnSessionReset: func(staleSessionID string) {
			metrics.IncrementCounter(metrics.MetricSessionResets, map[string]string{"type": string(convType)})
			if rt.config.Sessions != nil {
				// The stale record must not resurface on the next restart
				// even when the fresh retry fails before persisting anew.
				rt.config.Sessions.Remove(conversationID)
			}
			rt.logger.WithFields(logrus.Fields{
				"conversation_id": privacy.MaskConversationID(conversationID),
				"session_id":      privacy.MaskSessionID(staleSessionID),
			}).Info("Dropped stale session record")
		},
	}, rt.config.Executor, rt.logger)

	if rt.config.Sessions != nil {
		if record, ok := rt.config.Sessions.Get(msg.ConversationID); ok {
			runner.Initialize(record.SessionID)
			rt.logger.WithFields(logrus.Fields{
				"conversation_id": privacy.MaskConversationID(msg.ConversationID),
				"session_id":      privacy.MaskSessionID(record.SessionID),
			}).Info("Resuming persisted session")
		}
	}
	return runner
}

func (rt *Router) worker(conv *conversation) {
	defer rt.wg.Done()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-conv.notify:
			rt.runPending(conv)
		}
	}
}

// runPending executes one turn over everything queued. Wakes can be
// spurious; an empty drain skips the turn. Every exit ends with Wake:
// an Enqueue landing while the busy flag was held saw its own Wake
// no-op, so the closing one here is what re-notifies it.
func (rt *Router) runPending(conv *conversation) {
	conv.mailbox.SetBusy(true)
	batch := conv.mailbox.Drain()
	if len(batch) > 0 {
		rt.runTurn(conv, batch)
	}
	conv.mailbox.SetBusy(false)
	conv.mailbox.Wake()
}

func (rt *Router) runTurn(conv *conversation, batch []models.FormattedMessage) {
	chatID := conv.mailbox.ChatID()
	convType := conv.mailbox.Type()
	labels := map[string]string{"type": string(convType)}

	ctx, span := tracing.StartSpan(rt.ctx, "conversation.turn",
		attribute.String("conversation.id", chatID),
		attribute.String("conversation.type", string(convType)),
		attribute.Int("batch.size", len(batch)),
	)
	defer span.End()

	timeout := time.Duration(rt.config.Agent.TurnTimeoutSec) * time.Second
	start := time.Now()
	result, err := conv.runner.RunTurn(ctx, RenderBatch(batch), timeout)
	metrics.RecordTimer(metrics.MetricTurnDuration, time.Since(start), labels)

	logFields := logrus.Fields{
		"conversation_id": privacy.MaskConversationID(chatID),
		"batch_size":      len(batch),
		"duration":        time.Since(start),
	}

	switch {
	case err != nil:
		// The failure stays inside this conversation; others are untouched.
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter(metrics.MetricTurnsFailed, labels)
		rt.logger.WithError(err).WithFields(logFields).Error("Turn failed")
	case result.TimedOut:
		tracing.AddSpanAttributes(ctx, attribute.Bool("turn.timed_out", true))
		metrics.IncrementCounter(metrics.MetricTurnsTimedOut, labels)
		rt.logger.WithFields(logFields).Warn("Turn timed out")
	default:
		metrics.IncrementCounter(metrics.MetricTurnsCompleted, labels)
		rt.logger.WithFields(logFields).Info("Turn completed")
		rt.deliver(ctx, chatID, convType, result.Response)
	}

	rt.persistSession(conv, chatID, convType)
}

func (rt *Router) deliver(ctx context.Context, chatID string, convType models.ConversationType, response string) {
	if rt.config.Sender == nil || response == "" {
		return
	}
	if err := rt.config.Sender.Send(ctx, chatID, convType, response); err != nil {
		rt.logger.WithError(err).WithField("conversation_id", privacy.MaskConversationID(chatID)).Error("Failed to deliver response")
	}
}

// persistSession writes the runner's current session id, if any. Even a
// timed-out or failed turn may have advanced the id.
func (rt *Router) persistSession(conv *conversation, chatID string, convType models.ConversationType) {
	if rt.config.Sessions == nil {
		return
	}
	sessionID := conv.runner.SessionID()
	if sessionID == "" {
		return
	}
	rt.config.Sessions.Save(chatID, models.SessionRecord{
		Type:      convType,
		SessionID: sessionID,
	})
}
