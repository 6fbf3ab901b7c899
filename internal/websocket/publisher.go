package websocket

// EventPublisher delivers events to whoever listens on a topic
type EventPublisher interface {
	Publish(topic string, event Event)
}

var _ EventPublisher = (*Hub)(nil)

// TopicAll is used for events that are not tied to one contract type
const TopicAll = "*"

// Publish implements EventPublisher. TopicAll reaches every subscriber.
func (h *Hub) Publish(topic string, event Event) {
	if topic == TopicAll {
		h.broadcastAll(event)
		return
	}
	h.Broadcast(topic, event)
}

func (h *Hub) broadcastAll(event Event) {
	data, err := event.ToJSON()
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		go func(s Subscriber) { _ = s.Send(data) }(s)
	}
}

// NoOpPublisher drops every event; used when no hub is wired
type NoOpPublisher struct{}

func (n *NoOpPublisher) Publish(topic string, event Event) {}
