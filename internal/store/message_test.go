package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

func msgAt(id, text string, ts time.Time) model.Message {
	return model.Message{ID: id, ThreadID: "t1", SenderID: "u1", Text: text, Timestamp: ts}
}

func TestAppendDedupByID(t *testing.T) {
	s := NewMessageStore()
	ts := at(10)

	assert.Equal(t, AppendInserted, s.Append("t1", msgAt("m1", "hi", ts)))
	assert.Equal(t, AppendNoop, s.Append("t1", msgAt("m1", "hi", ts)))
	assert.Equal(t, 1, s.Len("t1"))
}

func TestFallbackKeyCollapse(t *testing.T) {
	s := NewMessageStore()
	ts := at(10)

	optimistic := model.Message{ThreadID: "t1", SenderID: "u1", Text: "hi", Timestamp: ts}
	assert.Equal(t, AppendInserted, s.Append("t1", optimistic))

	// Authoritative echo: same (text, timestamp), now carrying the server id.
	echo := msgAt("srv1", "hi", ts)
	assert.Equal(t, AppendMerged, s.Append("t1", echo))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv1", msgs[0].ID)

	// Re-delivery of the echo is absorbed.
	assert.Equal(t, AppendNoop, s.Append("t1", echo))
	assert.Equal(t, 1, s.Len("t1"))
}

func TestClientTokenCollapse(t *testing.T) {
	s := NewMessageStore()

	optimistic := model.Message{ThreadID: "t1", SenderID: "u1", Text: "hi", Timestamp: at(10), ClientToken: "tok-1"}
	s.Append("t1", optimistic)

	// The server assigned its own timestamp, so the fallback pair would not
	// match; the echoed token still pairs them.
	echo := model.Message{ID: "srv1", ThreadID: "t1", SenderID: "u1", Text: "hi", Timestamp: at(11), ClientToken: "tok-1"}
	assert.Equal(t, AppendMerged, s.Append("t1", echo))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv1", msgs[0].ID)
	assert.True(t, msgs[0].Timestamp.Equal(at(11)))
}

func TestFallbackNeverPairsDistinctServerIDs(t *testing.T) {
	s := NewMessageStore()
	ts := at(10)

	// Two real messages with identical text in the same instant, both acked.
	s.Append("t1", msgAt("m1", "ok", ts))
	s.Append("t1", msgAt("m2", "ok", ts))
	assert.Equal(t, 2, s.Len("t1"))
}

func TestOverlappingWindows(t *testing.T) {
	s := NewMessageStore()

	m1 := msgAt("m1", "one", at(1))
	m2 := msgAt("m2", "two", at(2))
	m3 := msgAt("m3", "three", at(3))

	assert.Equal(t, 2, s.UpsertBatch("t1", []model.Message{m1, m2}))
	assert.Equal(t, 1, s.UpsertBatch("t1", []model.Message{m2, m3}))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "m3", msgs[2].ID)
}

func TestInsertionOrderPreserved(t *testing.T) {
	s := NewMessageStore()

	// Out-of-timestamp-order arrival: the store keeps arrival order and does
	// not silently re-sort on merge.
	s.Append("t1", msgAt("m2", "second", at(20)))
	s.Append("t1", msgAt("m1", "first", at(10)))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m1", msgs[1].ID)
}

func TestClearThread(t *testing.T) {
	s := NewMessageStore()
	s.Append("t1", msgAt("m1", "hi", at(1)))
	s.Append("t2", msgAt("m9", "other", at(1)))

	s.Clear("t1")
	assert.Equal(t, 0, s.Len("t1"))
	assert.Equal(t, 1, s.Len("t2"))

	// A cleared thread accepts fresh merges.
	assert.Equal(t, AppendInserted, s.Append("t1", msgAt("m1", "hi", at(1))))
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewMessageStore()
	s.Append("t1", msgAt("m1", "hi", at(1)))

	msgs := s.Messages("t1")
	msgs[0].Text = "mutated"

	assert.Equal(t, "hi", s.Messages("t1")[0].Text)
	assert.Nil(t, s.Messages("missing"))
}

func TestEchoFillsSenderDetails(t *testing.T) {
	s := NewMessageStore()
	ts := at(10)

	s.Append("t1", model.Message{ThreadID: "t1", Text: "hi", Timestamp: ts})
	echo := model.Message{ID: "srv1", ThreadID: "t1", SenderID: "u1", Sender: &model.Participant{ID: "u1", Name: "Anika"}, Text: "hi", Timestamp: ts}
	assert.Equal(t, AppendMerged, s.Append("t1", echo))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "u1", msgs[0].SenderID)
	require.NotNil(t, msgs[0].Sender)
	assert.Equal(t, "Anika", msgs[0].Sender.Name)
}
