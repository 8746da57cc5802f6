package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

func TestConversationLastMessageShapes(t *testing.T) {
	asString := []byte(`{"threadId":"t1","lastMessage":"hello there"}`)
	conv, err := Conversation(asString)
	require.NoError(t, err)
	assert.Equal(t, "hello there", conv.LastMessage)

	asObject := []byte(`{"threadId":"t1","lastMessage":{"text":"from object"}}`)
	conv, err = Conversation(asObject)
	require.NoError(t, err)
	assert.Equal(t, "from object", conv.LastMessage)

	asContent := []byte(`{"threadId":"t1","lastMessage":{"content":"content key"}}`)
	conv, err = Conversation(asContent)
	require.NoError(t, err)
	assert.Equal(t, "content key", conv.LastMessage)
}

func TestConversationTimestampAliases(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	for _, field := range []string{"lastMessageTimestamp", "timestamp", "updatedAt", "createdAt"} {
		payload := []byte(`{"threadId":"t1","` + field + `":"2025-03-14T09:26:53Z"}`)
		conv, err := Conversation(payload)
		require.NoError(t, err, field)
		assert.True(t, conv.LastMessageAt.Equal(want), field)
	}
}

func TestConversationEpochMillis(t *testing.T) {
	conv, err := Conversation([]byte(`{"threadId":"t1","updatedAt":1741944413000}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1741944413), conv.LastMessageAt.Unix())
}

func TestConversationIdentityRequired(t *testing.T) {
	_, err := Conversation([]byte(`{"status":"pending","lastMessage":"hi"}`))
	assert.ErrorIs(t, err, ErrNoIdentity)

	conv, err := Conversation([]byte(`{"requestId":"r1","status":"pending"}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", conv.Key())
}

func TestConversationUnknownStatusLeftEmpty(t *testing.T) {
	conv, err := Conversation([]byte(`{"threadId":"t1","status":"weird"}`))
	require.NoError(t, err)
	assert.Equal(t, model.Status(""), conv.Status)

	conv, err = Conversation([]byte(`{"threadId":"t1","status":"APPROVED"}`))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, conv.Status)
}

func TestMessageSenderShapes(t *testing.T) {
	bare := []byte(`{"threadId":"t1","senderId":"u9","text":"hi","timestamp":"2025-03-14T09:26:53Z"}`)
	msg, err := Message(bare)
	require.NoError(t, err)
	assert.Equal(t, "u9", msg.SenderID)
	assert.Nil(t, msg.Sender)

	embedded := []byte(`{"threadId":"t1","senderId":{"_id":"u9","name":"Rafi"},"text":"hi","timestamp":"2025-03-14T09:26:53Z"}`)
	msg, err = Message(embedded)
	require.NoError(t, err)
	assert.Equal(t, "u9", msg.SenderID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Rafi", msg.Sender.Name)
	assert.Equal(t, PlaceholderAvatar("u9"), msg.Sender.Avatar)

	nameless := []byte(`{"threadId":"t1","senderId":{"_id":"u9"},"text":"hi","timestamp":"2025-03-14T09:26:53Z"}`)
	msg, err = Message(nameless)
	require.NoError(t, err)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Unknown", msg.Sender.Name)
}

func TestMessageIdentityFallback(t *testing.T) {
	// No id but (text, timestamp) derivable: accepted.
	msg, err := Message([]byte(`{"threadId":"t1","text":"hi","createdAt":"2025-03-14T09:26:53Z"}`))
	require.NoError(t, err)
	assert.Empty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	// Nothing to identify the message by: dropped.
	_, err = Message([]byte(`{"threadId":"t1","text":"hi"}`))
	assert.ErrorIs(t, err, ErrNoIdentity)

	// No thread to route to: dropped.
	_, err = Message([]byte(`{"id":"m1","text":"hi","timestamp":"2025-03-14T09:26:53Z"}`))
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestMessageMongoIDAlias(t *testing.T) {
	msg, err := Message([]byte(`{"_id":"m7","threadId":"t1","text":"hi","timestamp":"2025-03-14T09:26:53Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m7", msg.ID)
}

func TestListVariantsDropMalformed(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"threadId":"t1","text":"ok","timestamp":"2025-03-14T09:26:53Z"}`),
		json.RawMessage(`{"text":"no thread"}`),
		json.RawMessage(`not even json`),
	}
	msgs, dropped := MessageList(items)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 2, dropped)

	convItems := []json.RawMessage{
		json.RawMessage(`{"threadId":"t1"}`),
		json.RawMessage(`{"lastMessage":"orphan"}`),
	}
	convs, dropped := ConversationList(convItems)
	assert.Len(t, convs, 1)
	assert.Equal(t, 1, dropped)
}

func TestConversationParticipantsAndSessions(t *testing.T) {
	payload := []byte(`{
		"threadId":"t1",
		"participants":[
			{"_id":"u1","name":"Anika","role":"student"},
			{"id":"u2","name":"Mr. Karim","role":"teacher","profileImage":"https://cdn/x.png"}
		],
		"sessions":[{"_id":"s1","subject":"Physics","date":"2025-03-20T15:00:00Z"}]
	}`)
	conv, err := Conversation(payload)
	require.NoError(t, err)
	require.Len(t, conv.Participants, 2)
	assert.Equal(t, "u1", conv.Participants[0].ID)
	assert.Equal(t, "https://cdn/x.png", conv.Participants[1].Avatar)
	require.Len(t, conv.Sessions, 1)
	assert.Equal(t, "Physics", conv.Sessions[0].Subject)
	assert.False(t, conv.Sessions[0].StartsAt.IsZero())
}
