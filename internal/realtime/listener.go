package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
	"github.com/Shabbin/teaching-platform-sub001/internal/normalize"
	"github.com/Shabbin/teaching-platform-sub001/pkg/metrics"
)

// Sink receives normalized inbound events. The engine satisfies this.
type Sink interface {
	HandleMessageEvent(msg model.Message, incrementUnread bool)
	HandleThreadUpdate(conv model.Conversation)
	ShouldIncrementUnread(msg model.Message) bool
}

// Listen subscribes to the user's inbound subjects and routes events into the
// sink. Malformed payloads are dropped, never forwarded.
func (c *Client) Listen(sink Sink) error {
	msgSub, err := c.conn.Subscribe(messageSubject(c.userID), func(m *nats.Msg) {
		msg, err := normalize.Message(m.Data)
		if err != nil {
			metrics.PayloadsDropped.WithLabelValues("socket").Inc()
			c.logger.Warn("dropped malformed message event", zap.Error(err))
			return
		}
		sink.HandleMessageEvent(msg, sink.ShouldIncrementUnread(msg))
	})
	if err != nil {
		return fmt.Errorf("subscribe message events: %w", err)
	}
	c.subs = append(c.subs, msgSub)

	threadSub, err := c.conn.Subscribe(threadSubject(c.userID), func(m *nats.Msg) {
		conv, err := normalize.Conversation(m.Data)
		if err != nil {
			metrics.PayloadsDropped.WithLabelValues("socket").Inc()
			c.logger.Warn("dropped malformed thread update", zap.Error(err))
			return
		}
		sink.HandleThreadUpdate(conv)
	})
	if err != nil {
		return fmt.Errorf("subscribe thread updates: %w", err)
	}
	c.subs = append(c.subs, threadSub)

	return nil
}

// wireMessage is the outbound shape the backend expects for sends.
type wireMessage struct {
	ThreadID    string `json:"threadId"`
	SenderID    string `json:"senderId"`
	Text        string `json:"text"`
	Timestamp   string `json:"timestamp"`
	ClientToken string `json:"clientToken,omitempty"`
}

// JoinThread announces that the user is viewing a thread.
func (c *Client) JoinThread(threadID string) error {
	payload, err := json.Marshal(map[string]string{
		"threadId": threadID,
		"userId":   c.userID,
	})
	if err != nil {
		return err
	}
	return c.conn.Publish(joinSubject(threadID), payload)
}

// SendMessage publishes a locally-sent message, client token included so the
// server can echo it back for deduplication.
func (c *Client) SendMessage(msg model.Message) error {
	payload, err := json.Marshal(wireMessage{
		ThreadID:    msg.ThreadID,
		SenderID:    msg.SenderID,
		Text:        msg.Text,
		Timestamp:   msg.Timestamp.UTC().Format(time.RFC3339Nano),
		ClientToken: msg.ClientToken,
	})
	if err != nil {
		return err
	}
	return c.conn.Publish(sendSubject(), payload)
}

// MarkThreadRead publishes the read acknowledgment.
func (c *Client) MarkThreadRead(threadID, userID string) error {
	payload, err := json.Marshal(map[string]string{
		"threadId": threadID,
		"userId":   userID,
	})
	if err != nil {
		return err
	}
	return c.conn.Publish(readSubject(), payload)
}
