package logger

import "sync"

// Event is the JSON shape log records take in the ring buffer, the websocket
// stream, and the /api/v1/logs endpoint.
type Event struct {
	Time  string         `json:"time"`
	Level string         `json:"level"`
	Msg   string         `json:"msg"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ring keeps the newest events in a fixed-size circular buffer so the HTTP
// API can serve recent history without touching log files.
type ring struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{buf: make([]Event, size)}
}

func (r *ring) add(evt Event) {
	r.mu.Lock()
	r.buf[r.next] = evt
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// tail returns up to limit newest events in chronological order. limit <= 0
// means everything retained.
func (r *ring) tail(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []Event
	if r.full {
		ordered = append(ordered, r.buf[r.next:]...)
		ordered = append(ordered, r.buf[:r.next]...)
	} else {
		ordered = append(ordered, r.buf[:r.next]...)
	}
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

var defaultRing = newRing(2000)

func addEvent(evt Event) {
	defaultRing.add(evt)
}

// Recent returns up to limit of the newest log events, oldest first.
func Recent(limit int) []Event {
	return defaultRing.tail(limit)
}
