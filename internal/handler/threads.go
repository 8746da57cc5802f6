package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shabbin/teaching-platform-sub001/internal/engine"
	"github.com/Shabbin/teaching-platform-sub001/internal/middleware"
	"github.com/Shabbin/teaching-platform-sub001/internal/model"
	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
)

// ThreadHandler serves per-thread messages and thread actions.
type ThreadHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(eng *engine.Engine, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{engine: eng, logger: log}
}

// Messages handles GET /api/v1/threads/{id}/messages. With ?sync=1 the thread
// history is fetched from the backend before the local view is returned.
func (h *ThreadHandler) Messages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("sync") == "1" {
		if err := h.engine.SyncThread(r.Context(), threadID); err != nil {
			// The local view stays intact on fetch failure; serve it anyway.
			h.logger.Warn("thread sync failed", zap.String("thread_id", threadID), zap.Error(err))
		}
	}

	msgs := h.engine.MessagesForThread(threadID)
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		ThreadID: threadID,
		Messages: msgs,
		Total:    len(msgs),
	})
}

// Send handles POST /api/v1/threads/{id}/messages — the optimistic send.
func (h *ThreadHandler) Send(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if conv, ok := h.engine.Conversation(threadID); ok && conv.Status != model.StatusApproved {
		writeError(w, http.StatusConflict, "thread is not approved for messaging")
		return
	}

	msg, err := h.engine.SendOptimistic(threadID, req.Text)
	if err != nil {
		// The optimistic entry is already in the store; report the transport
		// failure alongside it.
		h.logger.Error("optimistic send failed", zap.String("thread_id", threadID), zap.Error(err))
		writeJSON(w, http.StatusAccepted, map[string]any{
			"message": msg,
			"warning": "message queued locally, transport send failed",
		})
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Read handles POST /api/v1/threads/{id}/read
func (h *ThreadHandler) Read(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.MarkRead(r.Context(), threadID); err != nil {
		// Local counter is already zero and stays zero.
		h.logger.Warn("mark read not acknowledged", zap.String("thread_id", threadID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "read state not acknowledged by backend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Join handles POST /api/v1/threads/{id}/join
func (h *ThreadHandler) Join(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.engine.JoinThread(threadID)
	w.WriteHeader(http.StatusNoContent)
}

// Leave handles POST /api/v1/threads/{id}/leave
func (h *ThreadHandler) Leave(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.engine.LeaveThread(threadID)
	w.WriteHeader(http.StatusNoContent)
}
