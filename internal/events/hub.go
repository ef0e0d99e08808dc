package events

import (
	"log/slog"
	"sync"
)

// subscriberBuffer bounds each observer channel. A full channel drops
// events for that observer only; delivery is best-effort and must
// never stall a run.
const subscriberBuffer = 32

// finishedTokenCap bounds the memory kept for tokens whose run ended
// but whose observer never connected to consume the marker.
const finishedTokenCap = 1024

// Hub broadcasts refresh progress to observers. It supports two
// delivery modes at once: broadcast subscribers see every event of
// every run, while session subscribers (keyed by a caller-supplied
// correlation token) see only the runs they joined and have their
// channel closed when that run ends.
type Hub struct {
	mu        sync.Mutex
	broadcast map[int]chan Event
	sessions  map[string]chan Event
	finished  map[string]bool
	nextID    int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(map[int]chan Event),
		sessions:  make(map[string]chan Event),
		finished:  make(map[string]bool),
	}
}

// Subscribe registers a broadcast observer. The returned cancel func
// must be called when the observer goes away; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.broadcast[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if ch, ok := h.broadcast[id]; ok {
			delete(h.broadcast, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Session returns the observer channel for a correlation token,
// creating it if needed. The channel is closed either by the cancel
// func or when the run the token joined finishes. Connecting for a
// token whose run already ended yields an immediately closed channel,
// so the observer terminates instead of hanging on a run that will
// never come.
func (h *Hub) Session(token string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finished[token] {
		delete(h.finished, token)
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch, ok := h.sessions[token]
	if !ok {
		ch = make(chan Event, subscriberBuffer)
		h.sessions[token] = ch
	}

	cancel := func() {
		h.removeSession(token)
	}
	return ch, cancel
}

// removeSession drops an observer that went away on its own. Unlike
// CloseSessions it does not mark the token's run as finished, so the
// same token can reconnect while its run is still pending.
func (h *Hub) removeSession(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.sessions[token]; ok {
		delete(h.sessions, token)
		close(ch)
	}
}

// Publish delivers an event to every broadcast subscriber and to the
// session channels of the given tokens.
func (h *Hub) Publish(ev Event, tokens ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.broadcast {
		h.send(ch, ev)
	}
	for _, token := range tokens {
		if ch, ok := h.sessions[token]; ok {
			h.send(ch, ev)
		}
	}
}

// SendTo delivers an event to a single session channel, if present.
func (h *Hub) SendTo(token string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.sessions[token]; ok {
		h.send(ch, ev)
	}
}

// CloseSessions ends the given tokens' runs: their channels are closed
// and removed, and the tokens are remembered as finished so a late
// observer gets a closed stream back.
func (h *Hub) CloseSessions(tokens ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, token := range tokens {
		if ch, ok := h.sessions[token]; ok {
			delete(h.sessions, token)
			close(ch)
		}
		if len(h.finished) >= finishedTokenCap {
			h.finished = make(map[string]bool)
		}
		h.finished[token] = true
	}
}

// send is non-blocking; a saturated observer loses the event.
// Callers hold h.mu.
func (h *Hub) send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		slog.Debug("dropping event for slow observer", "kind", ev.Kind)
	}
}
