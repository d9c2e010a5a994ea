package pipeline

import "context"

// queueCapacity bounds the event channel. The consumer drains continuously,
// so in practice the queue stays near empty; the buffer only absorbs bursts.
const queueCapacity = 256

// Queue is the per-request FIFO between one adapter and one relay loop.
// Events are delivered in push order; there is exactly one consumer.
type Queue struct {
	ch chan Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ch: make(chan Event, queueCapacity)}
}

// Push enqueues an event. Returns false if ctx was cancelled first, which is
// how adapters observe client disconnects at every emission point.
func (q *Queue) Push(ctx context.Context, ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// End enqueues the stream sentinel. When ctx is already cancelled the
// consumer is gone and the sentinel is dropped rather than blocking forever.
func (q *Queue) End(ctx context.Context) {
	select {
	case q.ch <- Event{Kind: KindEnd}:
	case <-ctx.Done():
	}
}

// Events exposes the receive side for the single consumer.
func (q *Queue) Events() <-chan Event {
	return q.ch
}
