package model

import (
	"time"
)

// Message is one chat message within a thread. ID is server-assigned and absent
// for just-sent optimistic messages; ClientToken is a locally generated
// idempotency token attached at send time and echoed back by the server.
type Message struct {
	ID          string       `json:"id,omitempty"`
	ThreadID    string       `json:"thread_id"`
	SenderID    string       `json:"sender_id"`
	Sender      *Participant `json:"sender,omitempty"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	ClientToken string       `json:"client_token,omitempty"`
}

// Fingerprint is the weak fallback identity for messages lacking both a server
// ID and a client token: the (text, timestamp) pair. Two distinct messages with
// identical text in the same instant collide; the client token exists to make
// that case unreachable for locally-sent messages.
func (m *Message) Fingerprint() string {
	return m.Text + "\x00" + m.Timestamp.UTC().Format(time.RFC3339Nano)
}

// SendMessageRequest is the local API request to send a message optimistically.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// RejectRequestBody carries the optional reason for rejecting a request.
type RejectRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

// ListMessagesResponse is the local API response for a thread's messages.
type ListMessagesResponse struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
