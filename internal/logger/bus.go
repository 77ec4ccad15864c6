package logger

import "sync"

// bus fans serialized log events out to live subscribers, one buffered
// channel each. Slow consumers lose messages instead of stalling the logger.
type bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []byte
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan []byte)}
}

func (b *bus) subscribe(buffer int) (chan []byte, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan []byte, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *bus) count() int {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return n
}

func (b *bus) publish(msg []byte) {
	if len(msg) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	copied := append([]byte(nil), msg...)
	for _, ch := range b.subs {
		select {
		case ch <- copied:
		default:
		}
	}
}

var defaultBus = newBus()

// Subscribe registers a live log stream. The returned cancel is idempotent
// and closes the channel.
func Subscribe() (<-chan []byte, func()) {
	ch, cancel := defaultBus.subscribe(256)
	return ch, cancel
}
