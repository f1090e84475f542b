package proxy

import (
	"sync"
	"time"

	"sumctl/pkg/logging"
)

const subscriberBuffer = 64

// Event is one log line as the browser terminal receives it.
type Event struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Subsystem string `json:"subsystem"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// EventFromEntry converts a log entry into its stream form.
func EventFromEntry(e logging.LogEntry) Event {
	ev := Event{
		Timestamp: e.Timestamp.Format(time.TimeOnly),
		Level:     e.Level.Tag(),
		Subsystem: e.Subsystem,
		Message:   e.Message,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	return ev
}

// Hub fans log events out to stream subscribers and keeps the most recent ones
// for clients that connect later. Slow subscribers miss events rather than block logging.
type Hub struct {
	mu   sync.Mutex
	size int
	buf  []Event
	subs map[chan Event]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub creates a hub replaying up to size events.
func NewHub(size int) *Hub {
	return &Hub{size: size, subs: make(map[chan Event]struct{}), done: make(chan struct{})}
}

// Close ends every open stream. Events published afterwards are still buffered.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Done is closed by Close.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Attach registers the hub as a logging sink until the returned function is called.
func (h *Hub) Attach() (detach func()) {
	return logging.AddSink(func(e logging.LogEntry) {
		h.Publish(EventFromEntry(e))
	})
}

// Publish records ev and delivers it to every subscriber that has room.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size > 0 {
		h.buf = append(h.buf, ev)
		if over := len(h.buf) - h.size; over > 0 {
			h.buf = append(h.buf[:0:0], h.buf[over:]...)
		}
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns the buffered events and a channel of the ones that follow.
// cancel must be called to unsubscribe.
func (h *Hub) Subscribe() (replay []Event, events <-chan Event, cancel func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	replay = append([]Event(nil), h.buf...)
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return replay, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

// Clear drops the replay buffer. Connected subscribers are unaffected.
func (h *Hub) Clear() {
	h.mu.Lock()
	h.buf = nil
	h.mu.Unlock()
}

// Len returns the number of buffered events.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buf)
}
