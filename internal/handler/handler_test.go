package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shabbin/teaching-platform-sub001/internal/engine"
	"github.com/Shabbin/teaching-platform-sub001/internal/model"
	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
)

type stubBackend struct {
	conversations []json.RawMessage
	messages      map[string][]json.RawMessage
}

func (s *stubBackend) ConversationsForUser(ctx context.Context, userID, role string) ([]json.RawMessage, error) {
	return s.conversations, nil
}

func (s *stubBackend) MessagesForThread(ctx context.Context, threadID string) ([]json.RawMessage, error) {
	return s.messages[threadID], nil
}

func (s *stubBackend) ApproveRequest(ctx context.Context, requestID string) error { return nil }

func (s *stubBackend) RejectRequest(ctx context.Context, requestID, reason string) error { return nil }

func (s *stubBackend) MarkThreadRead(ctx context.Context, threadID, userID string) error { return nil }

type stubTransport struct{}

func (stubTransport) JoinThread(threadID string) error           { return nil }
func (stubTransport) SendMessage(msg model.Message) error        { return nil }
func (stubTransport) MarkThreadRead(threadID, userID string) error { return nil }

func newTestRouter(eng *engine.Engine) http.Handler {
	log := logger.NewNop()
	conversationHandler := NewConversationHandler(eng, log)
	threadHandler := NewThreadHandler(eng, log)

	r := chi.NewRouter()
	r.Get("/api/v1/conversations", conversationHandler.List)
	r.Post("/api/v1/requests/{id}/approve", conversationHandler.Approve)
	r.Post("/api/v1/requests/{id}/reject", conversationHandler.Reject)
	r.Get("/api/v1/threads/{id}/messages", threadHandler.Messages)
	r.Post("/api/v1/threads/{id}/messages", threadHandler.Send)
	r.Post("/api/v1/threads/{id}/read", threadHandler.Read)
	r.Post("/api/v1/threads/{id}/leave", threadHandler.Leave)
	return r
}

func newEngine() *engine.Engine {
	return engine.New("me", "student", &stubBackend{messages: map[string][]json.RawMessage{}}, stubTransport{}, logger.NewNop())
}

func TestListConversations(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{
		ThreadID:      "t1",
		Status:        model.StatusApproved,
		LastMessage:   "hey",
		LastMessageAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	})

	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "t1", resp.Conversations[0].ThreadID)
}

func TestSendMessageOnApprovedThread(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{ThreadID: "t1", Status: model.StatusApproved, LastMessageAt: time.Now()})

	body := strings.NewReader(`{"text":"hello teacher"}`)
	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/messages", body))

	require.Equal(t, http.StatusCreated, w.Code)
	var msg model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Empty(t, msg.ID)
	assert.NotEmpty(t, msg.ClientToken)

	assert.Len(t, eng.MessagesForThread("t1"), 1)
}

func TestSendMessageOnPendingThreadConflicts(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{ThreadID: "t1", RequestID: "r1", Status: model.StatusPending, LastMessageAt: time.Now()})

	body := strings.NewReader(`{"text":"too early"}`)
	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/messages", body))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, eng.MessagesForThread("t1"))
}

func TestSendMessageValidation(t *testing.T) {
	eng := newEngine()

	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/messages", strings.NewReader(`{"text":""}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/messages", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveRequestFlow(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{RequestID: "r1", ThreadID: "t1", Status: model.StatusPending, LastMessageAt: time.Now()})

	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/requests/r1/approve", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, model.StatusApproved, conv.Status)
}

func TestApproveUnknownRequestIs404(t *testing.T) {
	eng := newEngine()
	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/requests/ghost/approve", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectWithReason(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{RequestID: "r1", Status: model.StatusPending, LastMessageAt: time.Now()})

	body := strings.NewReader(`{"reason":"schedule conflict"}`)
	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/requests/r1/reject", body))

	require.Equal(t, http.StatusOK, w.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, model.StatusRejected, conv.Status)
}

func TestMarkThreadRead(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{ThreadID: "t1", Status: model.StatusApproved, LastMessageAt: time.Now()})
	eng.HandleMessageEvent(model.Message{ID: "m1", ThreadID: "t1", SenderID: "u2", Text: "hi", Timestamp: time.Now()}, true)

	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/read", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	conv, _ := eng.Conversation("t1")
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestMessagesWithSyncParam(t *testing.T) {
	backend := &stubBackend{messages: map[string][]json.RawMessage{
		"t1": {
			json.RawMessage(`{"id":"m1","threadId":"t1","senderId":"u2","text":"from rest","timestamp":"2025-03-14T09:00:01Z"}`),
		},
	}}
	eng := engine.New("me", "student", backend, stubTransport{}, logger.NewNop())

	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/threads/t1/messages?sync=1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.ListMessagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "m1", resp.Messages[0].ID)
}

func TestLeaveThreadEndpoint(t *testing.T) {
	eng := newEngine()
	eng.HandleThreadUpdate(model.Conversation{ThreadID: "t1", RequestID: "r1", Status: model.StatusPending, LastMessageAt: time.Now()})
	eng.HandleMessageEvent(model.Message{ID: "m1", ThreadID: "t1", SenderID: "u2", Text: "card", Timestamp: time.Now()}, false)

	w := httptest.NewRecorder()
	newTestRouter(eng).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/threads/t1/leave", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, eng.MessagesForThread("t1"))
}
