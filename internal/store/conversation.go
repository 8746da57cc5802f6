// Package store holds the per-session conversation and message collections.
// Stores are written only through the reconciliation engine; all merge
// operations are idempotent so that re-applying a payload is a no-op.
package store

import (
	"sort"
	"sync"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

// UnreadMode tells Upsert how to treat the unread counter. The store never
// inspects sender identity itself; the caller decides before invoking upsert.
type UnreadMode int

const (
	// UnreadKeep leaves the existing counter untouched.
	UnreadKeep UnreadMode = iota
	// UnreadAdopt takes the incoming payload's counter as authoritative
	// (REST snapshots reconciling server-side read state).
	UnreadAdopt
	// UnreadIncrement bumps the counter by one (inbound push message not
	// authored by the local user, thread not currently viewed).
	UnreadIncrement
)

type convEntry struct {
	conv    model.Conversation
	arrival int
}

// ConversationStore is the ordered, deduplicated collection of conversation
// summaries, one per logical thread. Identity is ThreadID when present, else
// RequestID as a provisional key until the server assigns a thread.
type ConversationStore struct {
	mu        sync.RWMutex
	entries   []*convEntry
	byThread  map[string]*convEntry
	byRequest map[string]*convEntry
	arrivals  int
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byThread:  make(map[string]*convEntry),
		byRequest: make(map[string]*convEntry),
	}
}

// Upsert inserts or merges a conversation. Incoming non-empty fields overwrite
// their counterparts; absent arrays never erase existing ones; a terminal
// status is never regressed by an ordinary merge; the preview text and
// timestamp only ever move forward. Returns true if the store changed.
func (s *ConversationStore) Upsert(conv model.Conversation, unread UnreadMode) bool {
	if conv.Key() == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.find(conv)
	if entry == nil {
		return s.insert(conv, unread)
	}
	return s.merge(entry, conv, unread)
}

func (s *ConversationStore) find(conv model.Conversation) *convEntry {
	if conv.ThreadID != "" {
		if e, ok := s.byThread[conv.ThreadID]; ok {
			return e
		}
	}
	if conv.RequestID != "" {
		if e, ok := s.byRequest[conv.RequestID]; ok {
			return e
		}
	}
	return nil
}

func (s *ConversationStore) insert(conv model.Conversation, unread UnreadMode) bool {
	if conv.Status == "" {
		conv.Status = model.StatusPending
	}
	switch unread {
	case UnreadIncrement:
		conv.UnreadCount = 1
	case UnreadKeep:
		conv.UnreadCount = 0
	}
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}

	entry := &convEntry{conv: conv, arrival: s.arrivals}
	s.arrivals++
	s.entries = append(s.entries, entry)
	if conv.ThreadID != "" {
		s.byThread[conv.ThreadID] = entry
	}
	if conv.RequestID != "" {
		s.byRequest[conv.RequestID] = entry
	}
	s.resort()
	return true
}

func (s *ConversationStore) merge(entry *convEntry, conv model.Conversation, unread UnreadMode) bool {
	existing := &entry.conv
	changed := false

	// Promote the provisional request key once the server assigns a thread id.
	if conv.ThreadID != "" && existing.ThreadID == "" {
		existing.ThreadID = conv.ThreadID
		s.byThread[conv.ThreadID] = entry
		changed = true
	}
	if conv.RequestID != "" && existing.RequestID == "" {
		existing.RequestID = conv.RequestID
		s.byRequest[conv.RequestID] = entry
		changed = true
	}

	if conv.Status != "" && conv.Status != existing.Status {
		if !(existing.Status.Terminal() && conv.Status == model.StatusPending) {
			existing.Status = conv.Status
			changed = true
		}
	}

	if len(conv.Participants) > 0 && !participantsEqual(existing.Participants, conv.Participants) {
		existing.Participants = append([]model.Participant(nil), conv.Participants...)
		changed = true
	}
	if len(conv.Sessions) > 0 {
		existing.Sessions = append([]model.Session(nil), conv.Sessions...)
		changed = true
	}

	// The preview timestamp is monotonic non-decreasing, which keeps merges
	// commutative when REST and push completions interleave out of order.
	if !conv.LastMessageAt.IsZero() && !conv.LastMessageAt.Before(existing.LastMessageAt) {
		if !conv.LastMessageAt.Equal(existing.LastMessageAt) {
			existing.LastMessageAt = conv.LastMessageAt
			changed = true
		}
		if conv.LastMessage != "" && conv.LastMessage != existing.LastMessage {
			existing.LastMessage = conv.LastMessage
			changed = true
		}
	} else if conv.LastMessage != "" && existing.LastMessage == "" && existing.LastMessageAt.IsZero() {
		existing.LastMessage = conv.LastMessage
		changed = true
	}

	switch unread {
	case UnreadAdopt:
		if conv.UnreadCount >= 0 && conv.UnreadCount != existing.UnreadCount {
			existing.UnreadCount = conv.UnreadCount
			changed = true
		}
	case UnreadIncrement:
		existing.UnreadCount++
		changed = true
	}

	if changed {
		s.resort()
	}
	return changed
}

// resort recomputes the global ordering: lastMessageAt descending, ties
// preserving arrival order. Recomputed after every mutation rather than
// maintained incrementally.
func (s *ConversationStore) resort() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if !a.conv.LastMessageAt.Equal(b.conv.LastMessageAt) {
			return a.conv.LastMessageAt.After(b.conv.LastMessageAt)
		}
		return a.arrival < b.arrival
	})
}

// List returns a copy of the ordered collection.
func (s *ConversationStore) List() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyConversation(e.conv)
	}
	return out
}

// Get returns a copy of the conversation matching key (thread id or request id).
func (s *ConversationStore) Get(key string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.byThread[key]; ok {
		return copyConversation(e.conv), true
	}
	if e, ok := s.byRequest[key]; ok {
		return copyConversation(e.conv), true
	}
	return model.Conversation{}, false
}

// UpdateStatus transitions the status of the conversation with the given
// request id. No-op when the request is unknown or the transition would
// regress a terminal state. Returns the updated conversation.
func (s *ConversationStore) UpdateStatus(requestID string, status model.Status) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byRequest[requestID]
	if !ok || !status.Valid() {
		return model.Conversation{}, false
	}
	if entry.conv.Status.Terminal() && status == model.StatusPending {
		return model.Conversation{}, false
	}
	entry.conv.Status = status
	return copyConversation(entry.conv), true
}

// IncrementUnread bumps the unread counter for a thread by one.
func (s *ConversationStore) IncrementUnread(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return false
	}
	e.conv.UnreadCount++
	return true
}

// ResetUnread sets the unread counter to zero. Idempotent.
func (s *ConversationStore) ResetUnread(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return false
	}
	e.conv.UnreadCount = 0
	return true
}

// Len returns the number of conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *ConversationStore) lookup(key string) *convEntry {
	if e, ok := s.byThread[key]; ok {
		return e
	}
	if e, ok := s.byRequest[key]; ok {
		return e
	}
	return nil
}

func copyConversation(c model.Conversation) model.Conversation {
	out := c
	out.Participants = append([]model.Participant(nil), c.Participants...)
	out.Sessions = append([]model.Session(nil), c.Sessions...)
	return out
}

func participantsEqual(a, b []model.Participant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
