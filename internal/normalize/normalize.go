// Package normalize converts heterogeneous backend payloads into canonical
// entities. It is the single boundary for the duck-typed shapes the platform
// emits: every REST response and every realtime event passes through here
// before it can reach a store.
package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

// ErrNoIdentity marks a payload lacking both an identity field and a derivable
// fallback key. Callers drop such payloads rather than corrupt the stores.
var ErrNoIdentity = errors.New("normalize: payload has no usable identity")

// rawConversation mirrors the wire shape of a conversation payload. Polymorphic
// fields stay as json.RawMessage until decoded by the tolerant helpers below.
type rawConversation struct {
	ThreadID      string           `json:"threadId"`
	RequestID     string           `json:"requestId"`
	Status        string           `json:"status"`
	Participants  []rawParticipant `json:"participants"`
	Sessions      []rawSession     `json:"sessions"`
	LastMessage   json.RawMessage  `json:"lastMessage"`
	LastMessageTS json.RawMessage  `json:"lastMessageTimestamp"`
	Timestamp     json.RawMessage  `json:"timestamp"`
	CreatedAt     json.RawMessage  `json:"createdAt"`
	UpdatedAt     json.RawMessage  `json:"updatedAt"`
	UnreadCount   *int             `json:"unreadCount"`
}

type rawParticipant struct {
	ID           string `json:"id"`
	MongoID      string `json:"_id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	ProfileImage string `json:"profileImage"`
	Role         string `json:"role"`
}

type rawSession struct {
	ID       string          `json:"id"`
	MongoID  string          `json:"_id"`
	Subject  string          `json:"subject"`
	StartsAt json.RawMessage `json:"startsAt"`
	Date     json.RawMessage `json:"date"`
}

type rawMessage struct {
	ID          string          `json:"id"`
	MongoID     string          `json:"_id"`
	ThreadID    string          `json:"threadId"`
	Sender      json.RawMessage `json:"senderId"`
	Text        string          `json:"text"`
	Content     string          `json:"content"`
	Timestamp   json.RawMessage `json:"timestamp"`
	CreatedAt   json.RawMessage `json:"createdAt"`
	UpdatedAt   json.RawMessage `json:"updatedAt"`
	ClientToken string          `json:"clientToken"`
}

// Conversation normalizes a raw conversation payload.
func Conversation(data []byte) (model.Conversation, error) {
	var raw rawConversation
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Conversation{}, err
	}

	if raw.ThreadID == "" && raw.RequestID == "" {
		return model.Conversation{}, ErrNoIdentity
	}

	conv := model.Conversation{
		ThreadID:    raw.ThreadID,
		RequestID:   raw.RequestID,
		Status:      parseStatus(raw.Status),
		LastMessage: lastMessageText(raw.LastMessage),
	}

	if ts, ok := firstTime(raw.LastMessageTS, raw.Timestamp, raw.UpdatedAt, raw.CreatedAt); ok {
		conv.LastMessageAt = ts
	}
	// -1 marks "not supplied" so a snapshot without the field cannot wipe a
	// locally tracked counter when the caller adopts server-side unread state.
	conv.UnreadCount = -1
	if raw.UnreadCount != nil && *raw.UnreadCount >= 0 {
		conv.UnreadCount = *raw.UnreadCount
	}
	for _, p := range raw.Participants {
		conv.Participants = append(conv.Participants, participant(p))
	}
	for _, s := range raw.Sessions {
		sess := model.Session{ID: firstNonEmpty(s.ID, s.MongoID), Subject: s.Subject}
		if ts, ok := firstTime(s.StartsAt, s.Date); ok {
			sess.StartsAt = ts
		}
		if sess.ID != "" {
			conv.Sessions = append(conv.Sessions, sess)
		}
	}

	return conv, nil
}

// Message normalizes a raw message payload. A payload missing a server id, a
// client token, and the (text, timestamp) fallback pair is rejected, as is one
// that names no thread.
func Message(data []byte) (model.Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		ID:          firstNonEmpty(raw.ID, raw.MongoID),
		ThreadID:    raw.ThreadID,
		Text:        firstNonEmpty(raw.Text, raw.Content),
		ClientToken: raw.ClientToken,
	}
	if ts, ok := firstTime(raw.Timestamp, raw.CreatedAt, raw.UpdatedAt); ok {
		msg.Timestamp = ts
	}

	msg.SenderID, msg.Sender = sender(raw.Sender)

	if msg.ThreadID == "" {
		return model.Message{}, ErrNoIdentity
	}
	if msg.ID == "" && msg.ClientToken == "" && (msg.Text == "" || msg.Timestamp.IsZero()) {
		return model.Message{}, ErrNoIdentity
	}

	return msg, nil
}

// ConversationList normalizes a batch, dropping malformed entries. The second
// return value is the number of entries dropped.
func ConversationList(items []json.RawMessage) ([]model.Conversation, int) {
	out := make([]model.Conversation, 0, len(items))
	dropped := 0
	for _, item := range items {
		conv, err := Conversation(item)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, conv)
	}
	return out, dropped
}

// MessageList normalizes a batch, dropping malformed entries.
func MessageList(items []json.RawMessage) ([]model.Message, int) {
	out := make([]model.Message, 0, len(items))
	dropped := 0
	for _, item := range items {
		msg, err := Message(item)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, msg)
	}
	return out, dropped
}

// PlaceholderAvatar derives a deterministic avatar URL from a user id, used
// when the payload carries no image for a participant.
func PlaceholderAvatar(id string) string {
	return "https://api.dicebear.com/7.x/initials/svg?seed=" + id
}

// parseStatus maps unknown values to the empty status so that merges treat
// them as absent instead of regressing an existing state. Newly inserted
// conversations default to pending in the store.
func parseStatus(s string) model.Status {
	st := model.Status(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st
	}
	return ""
}

// lastMessageText accepts the preview either as a bare string or as an object
// carrying text/content.
func lastMessageText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.Text, obj.Content)
	}
	return ""
}

// sender accepts senderId as a bare id string or an embedded user object. For
// embedded objects a display participant is synthesized; the placeholder name
// is a last resort.
func sender(raw json.RawMessage) (string, *model.Participant) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var p rawParticipant
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil
	}
	part := participant(p)
	if part.ID == "" {
		return "", nil
	}
	return part.ID, &part
}

func participant(p rawParticipant) model.Participant {
	id := firstNonEmpty(p.ID, p.MongoID)
	name := p.Name
	if name == "" {
		name = "Unknown"
	}
	avatar := firstNonEmpty(p.Avatar, p.ProfileImage)
	if avatar == "" && id != "" {
		avatar = PlaceholderAvatar(id)
	}
	return model.Participant{ID: id, Name: name, Avatar: avatar, Role: p.Role}
}

// firstTime returns the first candidate that parses as a timestamp. Accepted
// encodings are RFC3339 strings and epoch values (seconds or milliseconds).
func firstTime(candidates ...json.RawMessage) (time.Time, bool) {
	for _, c := range candidates {
		if ts, ok := parseTime(c); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		// Heuristic: values past the year 2286 in seconds are milliseconds.
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
