// Package engine implements the reconciliation engine: every REST snapshot,
// every realtime event, and every locally-originated optimistic write is
// merged into the conversation and message stores here, under identity and
// ordering invariants that make re-application of any payload a no-op.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
	"github.com/Shabbin/teaching-platform-sub001/internal/normalize"
	"github.com/Shabbin/teaching-platform-sub001/internal/store"
	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
	"github.com/Shabbin/teaching-platform-sub001/pkg/metrics"
)

// ErrUnknownRequest is returned when an approve/reject names a request id the
// store has never seen.
var ErrUnknownRequest = errors.New("engine: unknown request id")

// ErrEmptyMessage is returned when an optimistic send carries no text.
var ErrEmptyMessage = errors.New("engine: message text is empty")

// Backend is the platform REST collaborator consumed by the engine.
type Backend interface {
	ConversationsForUser(ctx context.Context, userID, role string) ([]json.RawMessage, error)
	MessagesForThread(ctx context.Context, threadID string) ([]json.RawMessage, error)
	ApproveRequest(ctx context.Context, requestID string) error
	RejectRequest(ctx context.Context, requestID, reason string) error
	MarkThreadRead(ctx context.Context, threadID, userID string) error
}

// Transport is the realtime collaborator's outbound half.
type Transport interface {
	JoinThread(threadID string) error
	SendMessage(msg model.Message) error
	MarkThreadRead(threadID, userID string) error
}

// Engine owns the session-scoped stores and applies all mutations to them.
// It is created at session start and torn down at logout; tests instantiate
// isolated instances with fake collaborators.
type Engine struct {
	userID string
	role   string

	conversations *store.ConversationStore
	messages      *store.MessageStore
	backend       Backend
	transport     Transport
	broker        *Broker
	logger        *logger.Logger

	mu      sync.Mutex
	viewing map[string]bool
}

// New creates an engine for one signed-in user.
func New(userID, role string, backend Backend, transport Transport, log *logger.Logger) *Engine {
	return &Engine{
		userID:        userID,
		role:          role,
		conversations: store.NewConversationStore(),
		messages:      store.NewMessageStore(),
		backend:       backend,
		transport:     transport,
		broker:        NewBroker(),
		logger:        log,
		viewing:       make(map[string]bool),
	}
}

// UserID returns the local user's id.
func (e *Engine) UserID() string { return e.userID }

// Subscribe attaches a UI subscriber to the change feed.
func (e *Engine) Subscribe() (<-chan model.ChangeEvent, func()) {
	return e.broker.Subscribe()
}

// Close tears the engine down at logout.
func (e *Engine) Close() {
	e.broker.Close()
}

// Conversations returns the ordered conversation list.
func (e *Engine) Conversations() []model.Conversation {
	return e.conversations.List()
}

// MessagesForThread returns a thread's messages in insertion order.
func (e *Engine) MessagesForThread(threadID string) []model.Message {
	return e.messages.Messages(threadID)
}

// Conversation returns one conversation by thread or request id.
func (e *Engine) Conversation(key string) (model.Conversation, bool) {
	return e.conversations.Get(key)
}

// SyncConversations fetches the paginated conversation snapshot from the
// backend and reconciles it into the store. Server-side unread counts are
// adopted as authoritative. Safe to call concurrently with event handling;
// late completions merge idempotently.
func (e *Engine) SyncConversations(ctx context.Context) error {
	raws, err := e.backend.ConversationsForUser(ctx, e.userID, e.role)
	if err != nil {
		e.surfaceError("", fmt.Sprintf("conversation fetch failed: %v", err))
		return fmt.Errorf("fetch conversations: %w", err)
	}

	convs, dropped := normalize.ConversationList(raws)
	if dropped > 0 {
		metrics.PayloadsDropped.WithLabelValues("rest").Add(float64(dropped))
		e.logger.Warn("dropped malformed conversation payloads", zap.Int("count", dropped))
	}

	for _, conv := range convs {
		e.conversations.Upsert(conv, store.UnreadAdopt)
	}
	metrics.EventsApplied.WithLabelValues("rest", "conversation").Add(float64(len(convs)))
	metrics.ConversationsHeld.Set(float64(e.conversations.Len()))

	e.publish(model.ChangeEvent{Type: model.ChangeConversations})
	return nil
}

// SyncThread fetches a thread's full message history and reconciles it.
// Overlapping windows with earlier fetches or push events are absorbed by the
// per-message identity check.
func (e *Engine) SyncThread(ctx context.Context, threadID string) error {
	raws, err := e.backend.MessagesForThread(ctx, threadID)
	if err != nil {
		e.surfaceError(threadID, fmt.Sprintf("message fetch failed: %v", err))
		return fmt.Errorf("fetch messages for thread %s: %w", threadID, err)
	}

	msgs, dropped := normalize.MessageList(raws)
	if dropped > 0 {
		metrics.PayloadsDropped.WithLabelValues("rest").Add(float64(dropped))
		e.logger.Warn("dropped malformed message payloads",
			zap.String("thread_id", threadID), zap.Int("count", dropped))
	}

	changed := e.messages.UpsertBatch(threadID, msgs)
	metrics.EventsApplied.WithLabelValues("rest", "message").Add(float64(changed))

	if last, ok := latestMessage(msgs); ok {
		e.conversations.Upsert(model.Conversation{
			ThreadID:      threadID,
			LastMessage:   last.Text,
			LastMessageAt: last.Timestamp,
		}, store.UnreadKeep)
	}

	e.publish(model.ChangeEvent{Type: model.ChangeThread, ThreadID: threadID})
	return nil
}

// HandleMessageEvent applies an inbound realtime message. The unread counter
// is bumped only when the caller determined the increment applies; the engine
// cannot always know which user is current, so that decision is made upstream.
// Re-delivery of an already-known message is a no-op.
func (e *Engine) HandleMessageEvent(msg model.Message, incrementUnread bool) {
	result := e.messages.Append(msg.ThreadID, msg)
	if result == store.AppendNoop {
		return
	}
	if result == store.AppendMerged {
		// Authoritative echo collapsed onto an optimistic entry.
		metrics.EchoesCollapsed.Inc()
		incrementUnread = false
	}
	metrics.EventsApplied.WithLabelValues("socket", "message").Inc()

	unread := store.UnreadKeep
	if incrementUnread {
		unread = store.UnreadIncrement
	}
	e.conversations.Upsert(model.Conversation{
		ThreadID:      msg.ThreadID,
		LastMessage:   msg.Text,
		LastMessageAt: msg.Timestamp,
	}, unread)
	metrics.ConversationsHeld.Set(float64(e.conversations.Len()))

	stored := msg
	e.publish(model.ChangeEvent{Type: model.ChangeThread, ThreadID: msg.ThreadID, Message: &stored})
}

// HandleThreadUpdate applies an inbound conversation snapshot from the
// realtime channel.
func (e *Engine) HandleThreadUpdate(conv model.Conversation) {
	if !e.conversations.Upsert(conv, store.UnreadKeep) {
		return
	}
	metrics.EventsApplied.WithLabelValues("socket", "conversation").Inc()
	metrics.ConversationsHeld.Set(float64(e.conversations.Len()))
	e.publish(model.ChangeEvent{
		Type:      model.ChangeConversations,
		ThreadID:  conv.ThreadID,
		RequestID: conv.RequestID,
	})
}

// SendOptimistic appends a locally-sent message before any server
// acknowledgment and hands it to the transport. The message carries a client
// token so the eventual echo collapses onto this entry instead of duplicating
// it. On transport failure the optimistic entry stays; the error is surfaced
// and the next snapshot reconciles.
func (e *Engine) SendOptimistic(threadID, text string) (model.Message, error) {
	if text == "" {
		return model.Message{}, ErrEmptyMessage
	}

	msg := model.Message{
		ThreadID:    threadID,
		SenderID:    e.userID,
		Text:        text,
		Timestamp:   time.Now().UTC(),
		ClientToken: uuid.Must(uuid.NewV7()).String(),
	}

	e.messages.Append(threadID, msg)
	e.conversations.Upsert(model.Conversation{
		ThreadID:      threadID,
		LastMessage:   msg.Text,
		LastMessageAt: msg.Timestamp,
	}, store.UnreadKeep)

	stored := msg
	e.publish(model.ChangeEvent{Type: model.ChangeThread, ThreadID: threadID, Message: &stored})

	if err := e.transport.SendMessage(msg); err != nil {
		e.surfaceError(threadID, fmt.Sprintf("send failed: %v", err))
		return msg, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// Approve transitions a pending request to approved, optimistically and with
// no rollback path: a backend rejection is surfaced and the next fetch
// reconciles. On acknowledgment the full thread is fetched and joined.
func (e *Engine) Approve(ctx context.Context, requestID string) error {
	conv, ok := e.conversations.UpdateStatus(requestID, model.StatusApproved)
	if !ok {
		return ErrUnknownRequest
	}
	e.publish(model.ChangeEvent{
		Type:      model.ChangeStatus,
		RequestID: requestID,
		ThreadID:  conv.ThreadID,
		Status:    model.StatusApproved,
	})

	if err := e.backend.ApproveRequest(ctx, requestID); err != nil {
		e.surfaceError(conv.ThreadID, fmt.Sprintf("approve failed: %v", err))
		return fmt.Errorf("approve request %s: %w", requestID, err)
	}

	if conv.ThreadID != "" {
		e.JoinThread(conv.ThreadID)
		return e.SyncThread(ctx, conv.ThreadID)
	}
	// Thread id not yet assigned; a conversation resync learns it.
	return e.SyncConversations(ctx)
}

// Reject transitions a pending request to rejected. Symmetric to Approve,
// without the follow-up thread fetch.
func (e *Engine) Reject(ctx context.Context, requestID, reason string) error {
	conv, ok := e.conversations.UpdateStatus(requestID, model.StatusRejected)
	if !ok {
		return ErrUnknownRequest
	}
	e.publish(model.ChangeEvent{
		Type:      model.ChangeStatus,
		RequestID: requestID,
		ThreadID:  conv.ThreadID,
		Status:    model.StatusRejected,
	})

	if err := e.backend.RejectRequest(ctx, requestID, reason); err != nil {
		e.surfaceError(conv.ThreadID, fmt.Sprintf("reject failed: %v", err))
		return fmt.Errorf("reject request %s: %w", requestID, err)
	}
	return nil
}

// MarkRead zeroes a thread's unread counter, then acknowledges server-side.
// The zeroed counter is never restored on failure: read state is allowed to
// be eventually consistent but must not visibly regress.
func (e *Engine) MarkRead(ctx context.Context, threadID string) error {
	e.conversations.ResetUnread(threadID)
	metrics.UnreadResets.Inc()
	e.publish(model.ChangeEvent{Type: model.ChangeConversations, ThreadID: threadID})

	if err := e.backend.MarkThreadRead(ctx, threadID, e.userID); err != nil {
		e.surfaceError(threadID, fmt.Sprintf("mark read failed: %v", err))
		return fmt.Errorf("mark thread %s read: %w", threadID, err)
	}
	if err := e.transport.MarkThreadRead(threadID, e.userID); err != nil {
		e.logger.Warn("realtime read acknowledgment failed",
			zap.String("thread_id", threadID), zap.Error(err))
	}
	return nil
}

// JoinThread marks a thread as currently viewed and joins it on the realtime
// channel. While viewed, inbound messages do not bump the unread counter.
func (e *Engine) JoinThread(threadID string) {
	e.mu.Lock()
	e.viewing[threadID] = true
	e.mu.Unlock()

	if err := e.transport.JoinThread(threadID); err != nil {
		e.logger.Warn("join thread failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}

// LeaveThread clears the viewing mark. Leaving a thread that is not approved
// also clears its message collection, so pending-request bodies are never
// shown later as chat history. The Conversation entity itself stays.
func (e *Engine) LeaveThread(threadID string) {
	e.mu.Lock()
	delete(e.viewing, threadID)
	e.mu.Unlock()

	if conv, ok := e.conversations.Get(threadID); ok && conv.Status != model.StatusApproved {
		e.messages.Clear(threadID)
		e.publish(model.ChangeEvent{Type: model.ChangeThread, ThreadID: threadID})
	}
}

// Viewing reports whether the local user currently has the thread open.
func (e *Engine) Viewing(threadID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewing[threadID]
}

// ShouldIncrementUnread is the caller-side rule of the unread tracker: an
// inbound message bumps the counter iff it was not authored by the local user
// and its thread is not currently viewed.
func (e *Engine) ShouldIncrementUnread(msg model.Message) bool {
	return msg.SenderID != "" && msg.SenderID != e.userID && !e.Viewing(msg.ThreadID)
}

func (e *Engine) publish(ev model.ChangeEvent) {
	ev.Timestamp = time.Now().UTC()
	e.broker.Publish(ev)
}

// surfaceError publishes a retryable error to subscribers. Errors never clear
// or mutate the stores.
func (e *Engine) surfaceError(threadID, msg string) {
	e.logger.Error("sync error", zap.String("thread_id", threadID), zap.String("reason", msg))
	e.publish(model.ChangeEvent{Type: model.ChangeError, ThreadID: threadID, Error: msg})
}

func latestMessage(msgs []model.Message) (model.Message, bool) {
	var last model.Message
	found := false
	for _, m := range msgs {
		if !found || m.Timestamp.After(last.Timestamp) {
			last = m
			found = true
		}
	}
	return last, found
}
