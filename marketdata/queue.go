package marketdata

import "sync"

// Queue is the delivery path between a provider and its single consumer.
// Push never blocks the producer; events reach the consumer in push order.
// After Close the consumer still receives everything pushed before it.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	closed bool
	out    chan Event
}

// NewQueue creates an empty queue and starts its delivery goroutine.
func NewQueue() *Queue {
	q := &Queue{out: make(chan Event)}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// Push appends an event. Pushing to a closed queue drops the event.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.buf = append(q.buf, ev)
	q.cond.Signal()
}

// Close stops the queue. Buffered events are still delivered before the
// output channel closes. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Signal()
}

// C returns the receive side. Every call returns the same channel.
func (q *Queue) C() <-chan Event {
	return q.out
}

func (q *Queue) pump() {
	for {
		q.mu.Lock()
		for len(q.buf) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.buf) == 0 && q.closed {
			q.mu.Unlock()
			close(q.out)
			return
		}
		ev := q.buf[0]
		q.buf = q.buf[1:]
		q.mu.Unlock()

		q.out <- ev
	}
}
