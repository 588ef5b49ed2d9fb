// Package message implements the command/report exchange between the control
// domain and the worker goroutine that owns a channel's DSP state.
//
// Each channel worker owns exactly one inbound Queue. Control-side code builds
// an immutable message value, pushes it, and never touches it again; the
// worker drains the queue between sample blocks and is the sole owner of every
// popped message. Message kinds are a closed set of concrete structs per
// component, discriminated with a type switch in that component's
// handleMessage; an unrecognized kind makes handleMessage return false so
// another handler in the chain can claim it.
package message

import "sync"

// Message is any immutable command or report value. Concrete kinds are
// declared next to the component that consumes them.
type Message interface{}

// Queue is an unbounded FIFO. Push never blocks the producer. Pushes from a
// single producer are popped in push order; interleaving across producers is
// unspecified.
type Queue struct {
	mu    sync.Mutex
	items []Message
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Push enqueues msg and transfers its ownership to the queue.
func (q *Queue) Push(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest message, transferring ownership to the
// caller. It never blocks; ok is false when the queue is empty.
func (q *Queue) Pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}

// Wake returns a channel that receives a token after a Push. A worker selects
// on it alongside its sample input so pending messages are drained within one
// processing-block period. The token is collapsed: many pushes may produce a
// single wake, so receivers must Pop until empty.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
