package store

import (
	"sync"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

// threadMessages is one thread's ordered message collection with identity
// indexes. Order is arrival/insertion order, never silently re-sorted.
type threadMessages struct {
	msgs    []model.Message
	byID    map[string]int
	byToken map[string]int
	byFP    map[string]int
}

func newThreadMessages() *threadMessages {
	return &threadMessages{
		byID:    make(map[string]int),
		byToken: make(map[string]int),
		byFP:    make(map[string]int),
	}
}

// AppendResult describes the effect of merging one message.
type AppendResult int

const (
	// AppendNoop means the message's identity was already fully present.
	AppendNoop AppendResult = iota
	// AppendInserted means a new entry was appended at the tail.
	AppendInserted
	// AppendMerged means an existing entry absorbed new fields, typically a
	// server echo upgrading an optimistic message with its id.
	AppendMerged
)

// MessageStore holds per-thread ordered, deduplicated message collections.
type MessageStore struct {
	mu      sync.RWMutex
	threads map[string]*threadMessages
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{threads: make(map[string]*threadMessages)}
}

// Append merges a single message into its thread. A message whose identity is
// already present is absorbed; a server echo of an optimistic entry upgrades
// it in place instead of producing a second bubble.
func (s *MessageStore) Append(threadID string, msg model.Message) AppendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread(threadID).add(msg)
}

// UpsertBatch merges an incoming batch against the existing collection,
// preserving existing order and appending unseen messages at the tail. This
// tolerates REST fetches and the push stream delivering overlapping windows.
// Returns the number of messages that changed the collection.
func (s *MessageStore) UpsertBatch(threadID string, msgs []model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.thread(threadID)
	changed := 0
	for _, msg := range msgs {
		if t.add(msg) != AppendNoop {
			changed++
		}
	}
	return changed
}

// Messages returns a copy of the thread's collection in insertion order.
func (s *MessageStore) Messages(threadID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return append([]model.Message(nil), t.msgs...)
}

// Len returns the number of messages stored for a thread.
func (s *MessageStore) Len(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return 0
	}
	return len(t.msgs)
}

// Clear removes a thread's collection entirely. Used when the user leaves an
// unapproved thread, so stale pending-request bodies never show up as history.
func (s *MessageStore) Clear(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
}

func (s *MessageStore) thread(threadID string) *threadMessages {
	t, ok := s.threads[threadID]
	if !ok {
		t = newThreadMessages()
		s.threads[threadID] = t
	}
	return t
}

func (t *threadMessages) add(msg model.Message) AppendResult {
	if idx, ok := t.match(msg); ok {
		if t.mergeAt(idx, msg) {
			return AppendMerged
		}
		return AppendNoop
	}

	t.msgs = append(t.msgs, msg)
	idx := len(t.msgs) - 1
	t.index(idx, msg)
	return AppendInserted
}

// match finds an existing entry sharing the incoming message's identity:
// server id first, then client token, then the (text, timestamp) fallback.
// The fallback never pairs two messages that carry different server ids.
func (t *threadMessages) match(msg model.Message) (int, bool) {
	if msg.ID != "" {
		if idx, ok := t.byID[msg.ID]; ok {
			return idx, true
		}
	}
	if msg.ClientToken != "" {
		if idx, ok := t.byToken[msg.ClientToken]; ok {
			return idx, true
		}
	}
	if idx, ok := t.byFP[msg.Fingerprint()]; ok {
		existing := t.msgs[idx]
		if msg.ID != "" && existing.ID != "" && msg.ID != existing.ID {
			return 0, false
		}
		return idx, true
	}
	return 0, false
}

// mergeAt absorbs a duplicate into the entry at idx, keeping its position.
// An authoritative echo fills in the server id and any fields the optimistic
// entry lacked. Returns true if the entry changed.
func (t *threadMessages) mergeAt(idx int, msg model.Message) bool {
	existing := &t.msgs[idx]
	changed := false

	if msg.ID != "" && existing.ID == "" {
		existing.ID = msg.ID
		t.byID[msg.ID] = idx
		changed = true
	}
	if msg.ClientToken != "" && existing.ClientToken == "" {
		existing.ClientToken = msg.ClientToken
		t.byToken[msg.ClientToken] = idx
		changed = true
	}
	if msg.SenderID != "" && existing.SenderID == "" {
		existing.SenderID = msg.SenderID
		changed = true
	}
	if msg.Sender != nil && existing.Sender == nil {
		existing.Sender = msg.Sender
		changed = true
	}
	// Adopt the server timestamp on echo; the fingerprint index follows.
	if msg.ID != "" && !msg.Timestamp.IsZero() && !msg.Timestamp.Equal(existing.Timestamp) {
		if cur, ok := t.byFP[existing.Fingerprint()]; ok && cur == idx {
			delete(t.byFP, existing.Fingerprint())
		}
		existing.Timestamp = msg.Timestamp
		if _, taken := t.byFP[existing.Fingerprint()]; !taken {
			t.byFP[existing.Fingerprint()] = idx
		}
		changed = true
	}
	return changed
}

func (t *threadMessages) index(idx int, msg model.Message) {
	if msg.ID != "" {
		t.byID[msg.ID] = idx
	}
	if msg.ClientToken != "" {
		t.byToken[msg.ClientToken] = idx
	}
	if _, taken := t.byFP[msg.Fingerprint()]; !taken {
		t.byFP[msg.Fingerprint()] = idx
	}
}
