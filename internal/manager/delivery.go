package manager

import "fmt"

// deliveryLoop runs caller callbacks one at a time, in posting order.
func (m *Manager) deliveryLoop() {
	defer close(m.deliverDone)
	for fn := range m.deliver {
		m.runCallback(fn)
	}
}

func (m *Manager) runCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", "callback_panic").Str("panic", fmt.Sprint(r)).Msg("caller callback panicked")
		}
	}()
	fn()
}

// post queues fn for the delivery goroutine. It must not be called with mu
// held, and never after Close has closed the channel: every poster is either a
// background task Close waits for, or a caller rejected once closed is set.
func (m *Manager) post(fn func()) {
	m.deliver <- fn
}
