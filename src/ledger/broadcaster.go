package ledger

import "sync"

// Broadcaster fans the current unsynchronized count out to subscribers
// (the UI badge stream). Sends never block: a slow subscriber keeps only
// the most recent value.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan int]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan int]struct{})}
}

func (b *Broadcaster) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *Broadcaster) Publish(count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		// Replace a stale buffered value instead of blocking.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- count:
		default:
		}
	}
}
