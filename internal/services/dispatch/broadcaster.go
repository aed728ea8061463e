package dispatch

import (
	"sync"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// EventType classifies a conversation watch event.
type EventType string

const (
	// EventMessage carries a new message in the conversation.
	EventMessage EventType = "message"
	// EventStatus carries a conversation status change.
	EventStatus EventType = "status"
)

// Event is one item pushed to conversation watchers.
type Event struct {
	Type         EventType            `json:"type"`
	Message      *models.Message      `json:"message,omitempty"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
}

// Broadcaster fans conversation events out to in-process watchers,
// feeding the SSE watch endpoint. Slow watchers drop events rather
// than block the pipeline.
type Broadcaster struct {
	mu       sync.RWMutex
	watchers map[string]map[chan Event]struct{}
}

// NewBroadcaster creates an event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		watchers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a watcher for a conversation. The returned cancel
// function must be called when the watcher goes away.
func (b *Broadcaster) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	b.mu.Lock()
	if b.watchers[conversationID] == nil {
		b.watchers[conversationID] = make(map[chan Event]struct{})
	}
	b.watchers[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.watchers[conversationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.watchers, conversationID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish pushes an event to all watchers of a conversation.
func (b *Broadcaster) Publish(conversationID string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.watchers[conversationID] {
		select {
		case ch <- ev:
		default:
			// Watcher is not keeping up; drop.
		}
	}
}
