package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Shabbin/teaching-platform-sub001/internal/engine"
	"github.com/Shabbin/teaching-platform-sub001/internal/model"
	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
	"github.com/Shabbin/teaching-platform-sub001/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler serves the SSE change feed UI subscribers attach to.
type StreamHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(eng *engine.Engine, log *logger.Logger) *StreamHandler {
	return &StreamHandler{engine: eng, logger: log}
}

// Stream handles GET /api/v1/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSESubscribers()
	defer metrics.DecrementSSESubscribers()

	events, unsubscribe := h.engine.Subscribe()
	defer unsubscribe()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"user_id": h.engine.UserID(),
	})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE subscriber disconnected")
			return

		case ev, open := <-events:
			if !open {
				// Engine shut down; end the stream.
				return
			}
			sendSSEEvent(w, flusher, string(ev.Type), ev)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
