package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()

	ch1, stop1 := b.Subscribe()
	ch2, stop2 := b.Subscribe()
	defer stop1()
	defer stop2()

	b.Publish(model.ChangeEvent{Type: model.ChangeConversations})

	for _, ch := range []<-chan model.ChangeEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, model.ChangeConversations, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, stop := b.Subscribe()
	stop()

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	stop()
	assert.Equal(t, 0, b.Len())
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch, stop := b.Subscribe()
	defer stop()

	// Overflow the buffer; Publish must never block the engine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(model.ChangeEvent{Type: model.ChangeThread})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The subscriber still sees the buffered prefix.
	require.Equal(t, subscriberBuffer, len(ch))
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe()
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields an already-closed channel.
	late, _ := b.Subscribe()
	_, open = <-late
	assert.False(t, open)

	// Publishing after close is a no-op.
	b.Publish(model.ChangeEvent{Type: model.ChangeThread})
}
