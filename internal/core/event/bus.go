package event

import (
	"reflect"

	"go.uber.org/zap"
)

const defaultQueueCap = 64

// drainer is implemented by every typed queue. Events themselves are never
// stored behind an interface: queue[T] holds a []T.
type drainer interface {
	freeze() int
	deliver()
	reset()
	pending() int
}

type queue[T any] struct {
	items    []T // accepting emits
	frozen   []T // batch being delivered
	handlers []func(T)
}

// freeze moves the pending items into the delivery slot. Anything emitted
// afterwards lands in the (previously spent) other slice.
func (q *queue[T]) freeze() int {
	q.items, q.frozen = q.frozen, q.items
	return len(q.frozen)
}

func (q *queue[T]) deliver() {
	for i := range q.frozen {
		ev := q.frozen[i]
		for _, h := range q.handlers {
			h(ev)
		}
	}
	clear(q.frozen)
	q.frozen = q.frozen[:0]
}

func (q *queue[T]) reset() {
	clear(q.items)
	q.items = q.items[:0]
	clear(q.frozen)
	q.frozen = q.frozen[:0]
}

func (q *queue[T]) pending() int { return len(q.items) }

// Bus routes events to subscribers once per cycle. Emit only enqueues;
// subscribers run inside DrainAll, called by the loop owner after domain
// logic and before the snapshot swap.
//
// Single-writer: Emit, Subscribe and DrainAll must be called from the
// simulation goroutine.
type Bus struct {
	index    map[reflect.Type]int
	queues   []drainer
	scratch  []drainer
	draining bool
	closed   bool
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		index:   make(map[reflect.Type]int, 16),
		queues:  make([]drainer, 0, 16),
		scratch: make([]drainer, 0, 16),
		log:     log,
	}
}

// queueFor returns the queue for T, creating it on first use. Only the
// creation allocates.
func queueFor[T any](b *Bus) *queue[T] {
	t := reflect.TypeFor[T]()
	if i, ok := b.index[t]; ok {
		return b.queues[i].(*queue[T])
	}
	q := &queue[T]{
		items:  make([]T, 0, defaultQueueCap),
		frozen: make([]T, 0, defaultQueueCap),
	}
	b.index[t] = len(b.queues)
	b.queues = append(b.queues, q)
	return q
}

// Emit queues an event for the next DrainAll.
func Emit[T any](b *Bus, ev T) {
	if b.closed {
		return
	}
	q := queueFor[T](b)
	q.items = append(q.items, ev)
}

// Subscribe registers a typed handler for events of type T. Handlers run in
// subscription order.
func Subscribe[T any](b *Bus, fn func(T)) {
	if b.closed {
		return
	}
	q := queueFor[T](b)
	q.handlers = append(q.handlers, fn)
}

// Reserve pre-sizes the queue for T so the first cycles do not grow it.
func Reserve[T any](b *Bus, n int) {
	q := queueFor[T](b)
	if cap(q.items) < n {
		q.items = append(make([]T, 0, n), q.items...)
	}
	if cap(q.frozen) < n {
		q.frozen = make([]T, 0, n)
	}
}

// Pending returns the number of queued events of type T.
func Pending[T any](b *Bus) int {
	i, ok := b.index[reflect.TypeFor[T]()]
	if !ok {
		return 0
	}
	return b.queues[i].pending()
}

// DrainAll delivers every event queued before the call. The set of queues is
// snapshotted and each queue's contents frozen up front, so subscribers may
// emit (any type, including never-seen ones) without disturbing iteration;
// those events wait for the next DrainAll. Returns the number of events
// delivered.
func (b *Bus) DrainAll() int {
	if b.draining {
		b.log.Error("DrainAll called from a subscriber, ignored")
		return 0
	}
	b.draining = true
	defer func() { b.draining = false }()

	b.scratch = append(b.scratch[:0], b.queues...)
	total := 0
	for _, q := range b.scratch {
		total += q.freeze()
	}
	for _, q := range b.scratch {
		q.deliver()
	}
	clear(b.scratch)
	b.scratch = b.scratch[:0]
	return total
}

// PendingTotal is the number of queued events across all types.
func (b *Bus) PendingTotal() int {
	n := 0
	for _, q := range b.queues {
		n += q.pending()
	}
	return n
}

// TypeCount is the number of event types seen so far.
func (b *Bus) TypeCount() int { return len(b.queues) }

// Reset drops queued events and keeps subscriptions.
func (b *Bus) Reset() {
	for _, q := range b.queues {
		q.reset()
	}
}

// Close tears the registry down. Later Emit and Subscribe calls are ignored.
func (b *Bus) Close() {
	if b.closed {
		return
	}
	dropped := b.PendingTotal()
	b.closed = true
	clear(b.index)
	clear(b.queues)
	b.queues = b.queues[:0]
	if dropped > 0 {
		b.log.Warn("event bus closed with pending events", zap.Int("dropped", dropped))
	}
}
