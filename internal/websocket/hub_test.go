package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSubscriber captures what the hub sends it
type mockSubscriber struct {
	id       string
	topics   map[string]bool
	messages [][]byte
	closed   bool
	mu       sync.Mutex
}

func newMockSubscriber(id string, topics ...string) *mockSubscriber {
	set := make(map[string]bool)
	for _, t := range topics {
		set[t] = true
	}
	return &mockSubscriber{id: id, topics: set}
}

func (m *mockSubscriber) ID() string { return m.id }

func (m *mockSubscriber) Wants(topic string) bool {
	return len(m.topics) == 0 || m.topics[topic]
}

func (m *mockSubscriber) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSubscriber) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *mockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	pawn := newMockSubscriber("s-1", "pawn")
	installment := newMockSubscriber("s-2", "bat_ho")
	everything := newMockSubscriber("s-3")

	hub.Register(pawn)
	hub.Register(installment)
	hub.Register(everything)

	assert.Equal(t, 3, hub.TotalSubscriberCount())
	assert.Equal(t, 2, hub.SubscriberCount("pawn"))
	assert.Equal(t, 2, hub.SubscriberCount("bat_ho"))

	hub.Unregister(pawn)
	assert.Equal(t, 1, hub.SubscriberCount("pawn"))

	// unregistering twice is harmless
	hub.Unregister(pawn)
	assert.Equal(t, 2, hub.TotalSubscriberCount())
}

func TestHub_Broadcast_TopicIsolation(t *testing.T) {
	hub := NewHub()

	pawn := newMockSubscriber("s-1", "pawn")
	installment := newMockSubscriber("s-2", "bat_ho")
	everything := newMockSubscriber("s-3")
	hub.Register(pawn)
	hub.Register(installment)
	hub.Register(everything)

	hub.Broadcast("pawn", ContractStatusChanged(map[string]interface{}{"status": "BAD_DEBIT"}))

	require.Eventually(t, func() bool {
		return len(pawn.Messages()) == 1 && len(everything.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, installment.Messages())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(pawn.Messages()[0], &decoded))
	assert.Equal(t, "contract.status_changed", decoded["type"])
	assert.Equal(t, "contract", decoded["entity"])
}

func TestHub_Broadcast_NoSubscribers(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.Broadcast("pawn", ContractSettled(nil))
	})
}

func TestHub_Broadcast_ClosedSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()

	closed := newMockSubscriber("s-1")
	open := newMockSubscriber("s-2")
	require.NoError(t, closed.Close())
	hub.Register(closed)
	hub.Register(open)

	hub.Broadcast("pawn", ContractStatusChanged(nil))

	require.Eventually(t, func() bool {
		return len(open.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, closed.Messages())
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newMockSubscriber(fmt.Sprintf("s-%d", i))
			hub.Register(s)
			hub.Broadcast("pawn", ContractStatusChanged(i))
			hub.Unregister(s)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.TotalSubscriberCount())
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	a := newMockSubscriber("s-1")
	b := newMockSubscriber("s-2", "pawn")
	hub.Register(a)
	hub.Register(b)

	hub.CloseAll()

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, hub.TotalSubscriberCount())
}

func TestHub_PublishAllTopics(t *testing.T) {
	hub := NewHub()
	pawn := newMockSubscriber("s-1", "pawn")
	installment := newMockSubscriber("s-2", "bat_ho")
	hub.Register(pawn)
	hub.Register(installment)

	var publisher EventPublisher = hub
	publisher.Publish(TopicAll, DebtStatusRefreshCompleted(map[string]int{"total": 3}))

	require.Eventually(t, func() bool {
		return len(pawn.Messages()) == 1 && len(installment.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNoOpPublisher_Publish(t *testing.T) {
	publisher := &NoOpPublisher{}
	assert.NotPanics(t, func() {
		publisher.Publish("pawn", ContractSettled(nil))
	})
}
