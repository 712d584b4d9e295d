package server

import "sync"

// Broadcaster fans encoded payloads out to every subscribed connection's
// bounded outbound queue. Producers never block: a queue that is full marks
// its connection failed and its fail hook runs exactly once, off the
// broadcaster's lock. Per-source ordering is preserved because a source's
// publishes enqueue under the same lock in call order.
type Broadcaster struct {
	metrics *Metrics

	mu   sync.Mutex
	subs map[int]*subscriber
}

type subscriber struct {
	id     int
	queue  chan []byte
	fail   func()
	failed bool
}

func NewBroadcaster(m *Metrics) *Broadcaster {
	return &Broadcaster{
		metrics: m,
		subs:    make(map[int]*subscriber),
	}
}

// Subscribe registers a connection's outbound queue. fail is invoked at
// most once, when the queue overflows.
func (b *Broadcaster) Subscribe(id, depth int, fail func()) <-chan []byte {
	if depth <= 0 {
		depth = 256
	}
	sub := &subscriber{id: id, queue: make(chan []byte, depth), fail: fail}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return sub.queue
}

// Unsubscribe removes a connection. Pending queue items are abandoned; the
// owning writer drains or discards them.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish enqueues payload for every subscriber, optionally excluding the
// origin for echo-suppressible events.
func (b *Broadcaster) Publish(payload []byte, origin int, excludeOrigin bool) {
	var failed []*subscriber
	b.mu.Lock()
	for _, sub := range b.subs {
		if excludeOrigin && sub.id == origin {
			continue
		}
		if sub.failed {
			continue
		}
		if !b.enqueueLocked(sub, payload) {
			failed = append(failed, sub)
		}
	}
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.Broadcasts.Add(1)
	}
	for _, sub := range failed {
		if sub.fail != nil {
			sub.fail()
		}
	}
}

// Send enqueues payload for one subscriber only (direct replies, chunk
// responses). It reports whether the payload was accepted.
func (b *Broadcaster) Send(id int, payload []byte) bool {
	var failedSub *subscriber
	b.mu.Lock()
	sub, ok := b.subs[id]
	switch {
	case !ok:
	case sub.failed:
		ok = false
	case !b.enqueueLocked(sub, payload):
		failedSub = sub
		ok = false
	}
	b.mu.Unlock()
	if failedSub != nil && failedSub.fail != nil {
		failedSub.fail()
	}
	return ok
}

// Count returns the number of subscribed connections.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// enqueueLocked attempts a non-blocking enqueue on a sub that has not
// failed yet; a full queue trips the failed flag.
func (b *Broadcaster) enqueueLocked(sub *subscriber, payload []byte) bool {
	select {
	case sub.queue <- payload:
		return true
	default:
		sub.failed = true
		if b.metrics != nil {
			b.metrics.QueueOverflows.Add(1)
		}
		return false
	}
}
