package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// Subscriber is a connection that receives contract events
type Subscriber interface {
	ID() string
	// Wants reports whether the subscriber listens to the given topic
	Wants(topic string) bool
	Send(data []byte) error
	Close() error
}

// Hub fans contract events out to subscribers.
// Topics are contract types; a subscriber with no topics receives everything.
type Hub struct {
	subscribers map[string]Subscriber
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]Subscriber),
	}
}

func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subscribers[s.ID()] = s
	h.mu.Unlock()

	log.Debug().Str("subscriber_id", s.ID()).Msg("Event subscriber registered")
}

func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s.ID()]
	delete(h.subscribers, s.ID())
	h.mu.Unlock()

	if ok {
		log.Debug().Str("subscriber_id", s.ID()).Msg("Event subscriber unregistered")
	}
}

// Broadcast sends event to every subscriber of topic.
// Sends are asynchronous; a slow subscriber never blocks the caller.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		if s.Wants(topic) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		go func(s Subscriber) {
			if err := s.Send(data); err != nil {
				log.Warn().
					Err(err).
					Str("topic", topic).
					Str("subscriber_id", s.ID()).
					Msg("Failed to send event")
			}
		}(s)
	}

	log.Debug().
		Str("topic", topic).
		Str("event_type", event.Type).
		Int("subscriber_count", len(targets)).
		Msg("Broadcast event")
}

// SubscriberCount returns how many subscribers would receive an event on topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, s := range h.subscribers {
		if s.Wants(topic) {
			n++
		}
	}
	return n
}

func (h *Hub) TotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// CloseAll disconnects every subscriber, used on shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subscribers := h.subscribers
	h.subscribers = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, s := range subscribers {
		_ = s.Close()
	}
}
