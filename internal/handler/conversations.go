// Package handler provides the local HTTP API served to UI subscribers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shabbin/teaching-platform-sub001/internal/engine"
	"github.com/Shabbin/teaching-platform-sub001/internal/middleware"
	"github.com/Shabbin/teaching-platform-sub001/internal/model"
	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
)

// ConversationHandler serves the conversation list and the request workflow.
type ConversationHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(eng *engine.Engine, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{engine: eng, logger: log}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs := h.engine.Conversations()
	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// Refresh handles POST /api/v1/conversations/refresh — forces a snapshot
// fetch instead of waiting for the periodic resync.
func (h *ConversationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SyncConversations(r.Context()); err != nil {
		h.logger.Error("conversation refresh failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "conversation refresh failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Approve handles POST /api/v1/requests/{id}/approve
func (h *ConversationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(requestID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.engine.Approve(r.Context(), requestID)
	switch {
	case errors.Is(err, engine.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, "request not found")
		return
	case err != nil:
		// The optimistic transition already happened and is not rolled back;
		// the client learns of the divergence and may refresh.
		h.logger.Error("approve failed", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "approve not acknowledged by backend")
		return
	}

	conv, _ := h.engine.Conversation(requestID)
	writeJSON(w, http.StatusOK, conv)
}

// Reject handles POST /api/v1/requests/{id}/reject
func (h *ConversationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(requestID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body model.RejectRequestBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := middleware.ValidateReason(body.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.engine.Reject(r.Context(), requestID, body.Reason)
	switch {
	case errors.Is(err, engine.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, "request not found")
		return
	case err != nil:
		h.logger.Error("reject failed", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "reject not acknowledged by backend")
		return
	}

	conv, _ := h.engine.Conversation(requestID)
	writeJSON(w, http.StatusOK, conv)
}
