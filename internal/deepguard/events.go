package deepguard

import (
	"sync"
	"time"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
)

// EventType distinguishes completed analyses from failed ones.
type EventType string

const (
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is published after every analysis.
type Event struct {
	Type   EventType          `json:"type"`
	Source history.Source     `json:"source"`
	Result *prediction.Result `json:"result,omitempty"`
	Entry  *history.Entry     `json:"entry,omitempty"`
	Error  string             `json:"error,omitempty"`
	At     time.Time          `json:"at"`
}

// broadcaster fans events out to subscribers. Slow subscribers miss events rather than
// blocking an analysis.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

func (b *broadcaster) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
