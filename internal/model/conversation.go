// Package model defines the canonical entities held by the sync engine.
package model

import (
	"time"
)

// Status represents the lifecycle state of a tuition request thread.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is driven by the engine.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Participant is a display summary of one side of a conversation.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Session is a scheduled tutoring session attached to a conversation.
type Session struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	Subject  string    `json:"subject,omitempty"`
}

// Conversation is the summary entity representing one tutoring-request thread
// between two participants. At most one Conversation exists per logical thread;
// identity is ThreadID when assigned, else RequestID as a provisional key.
type Conversation struct {
	ThreadID      string        `json:"thread_id,omitempty"`
	RequestID     string        `json:"request_id,omitempty"`
	Participants  []Participant `json:"participants,omitempty"`
	Status        Status        `json:"status"`
	LastMessage   string        `json:"last_message"`
	LastMessageAt time.Time     `json:"last_message_at"`
	UnreadCount   int           `json:"unread_count"`
	Sessions      []Session     `json:"sessions,omitempty"`
}

// Key returns the identity used for upsert matching.
func (c *Conversation) Key() string {
	if c.ThreadID != "" {
		return c.ThreadID
	}
	return c.RequestID
}

// ListConversationsResponse is the local API response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
