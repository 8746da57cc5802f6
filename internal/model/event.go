package model

import (
	"time"
)

// ChangeType identifies what part of the local view a change event refers to.
type ChangeType string

const (
	ChangeConversations ChangeType = "conversations"
	ChangeThread        ChangeType = "thread"
	ChangeStatus        ChangeType = "status"
	ChangeError         ChangeType = "error"
)

// ChangeEvent is published on the subscriber feed after every successful store
// mutation, and for surfaced errors. UI subscribers react by re-reading the
// affected view; events carry enough to route, not the full state.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	ThreadID  string     `json:"thread_id,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Status    Status     `json:"status,omitempty"`
	Message   *Message   `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// HeartbeatEvent keeps SSE connections alive between change events.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
