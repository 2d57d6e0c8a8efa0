// Package eventbus provides a small lock-free pub/sub used for component
// signals: model health transitions and operation-mode changes.
package eventbus

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// EventBus fans events out to subscribers with per-subscriber buffering.
// A slow subscriber drops events rather than blocking publishers.
type EventBus[T any] struct {
	subscribers   *xsync.Map[string, *subscriber[T]]
	isShutdown    atomic.Bool
	subscriberSeq atomic.Uint64
	bufferSize    int
}

type subscriber[T any] struct {
	id       string
	ch       chan T
	dropped  atomic.Uint64
	isActive atomic.Bool
}

const DefaultBufferSize = 100

// New creates an EventBus with the default buffer size.
func New[T any]() *EventBus[T] {
	return NewWithBuffer[T](DefaultBufferSize)
}

func NewWithBuffer[T any](bufferSize int) *EventBus[T] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &EventBus[T]{
		subscribers: xsync.NewMap[string, *subscriber[T]](),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel that receives events and a cleanup function.
// The subscription also ends when ctx is cancelled.
func (eb *EventBus[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	if eb.isShutdown.Load() {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	id := "sub_" + strconv.FormatUint(eb.subscriberSeq.Add(1), 10)
	sub := &subscriber[T]{
		id: id,
		ch: make(chan T, eb.bufferSize),
	}
	sub.isActive.Store(true)
	eb.subscribers.Store(id, sub)

	go func() {
		<-ctx.Done()
		eb.unsubscribe(id)
	}()

	return sub.ch, func() { eb.unsubscribe(id) }
}

// Publish delivers event to every active subscriber, returning the number
// delivered. Full buffers count as drops.
func (eb *EventBus[T]) Publish(event T) int {
	if eb.isShutdown.Load() {
		return 0
	}

	delivered := 0
	eb.subscribers.Range(func(_ string, sub *subscriber[T]) bool {
		if !sub.isActive.Load() {
			return true
		}
		select {
		case sub.ch <- event:
			delivered++
		default:
			sub.dropped.Add(1)
		}
		return true
	})
	return delivered
}

// Shutdown stops the bus and closes every subscriber channel.
func (eb *EventBus[T]) Shutdown() {
	if !eb.isShutdown.CompareAndSwap(false, true) {
		return
	}
	eb.subscribers.Range(func(_ string, sub *subscriber[T]) bool {
		if sub.isActive.CompareAndSwap(true, false) {
			close(sub.ch)
		}
		return true
	})
	eb.subscribers.Clear()
}

// Stats reports subscriber counts and total dropped events.
type Stats struct {
	Subscribers  int
	TotalDropped uint64
	IsShutdown   bool
}

func (eb *EventBus[T]) Stats() Stats {
	stats := Stats{IsShutdown: eb.isShutdown.Load()}
	if stats.IsShutdown {
		return stats
	}
	eb.subscribers.Range(func(_ string, sub *subscriber[T]) bool {
		stats.Subscribers++
		stats.TotalDropped += sub.dropped.Load()
		return true
	})
	return stats
}

func (eb *EventBus[T]) unsubscribe(id string) {
	if sub, exists := eb.subscribers.LoadAndDelete(id); exists {
		if sub.isActive.CompareAndSwap(true, false) {
			close(sub.ch)
		}
	}
}

// Drain consumes events from ch until it closes or the timeout elapses,
// handy in tests asserting on published signals.
func Drain[T any](ch <-chan T, timeout time.Duration) []T {
	var out []T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timer.C:
			return out
		}
	}
}
