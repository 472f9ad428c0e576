package manager

import "sync"

// Broadcaster fans events out to subscribers. A subscriber that falls behind
// loses events rather than stalling the manager.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	buf  int
}

// NewBroadcaster returns a Broadcaster whose subscriber channels hold buf events.
func NewBroadcaster(buf int) *Broadcaster {
	if buf <= 0 {
		buf = 64
	}
	return &Broadcaster{subs: make(map[chan Event]struct{}), buf: buf}
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a listener. The returned func unsubscribes and closes
// the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buf)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// multiPublisher forwards to several publishers in order.
type multiPublisher []EventPublisher

func (m multiPublisher) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// Tee returns a publisher that forwards every event to each of pubs.
func Tee(pubs ...EventPublisher) EventPublisher { return multiPublisher(pubs) }
