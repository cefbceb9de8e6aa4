package sensors

import (
	"log"
	"sync"
	"sync/atomic"
)

// QueuedSource moves delivery off the wrapped source's callback onto a
// single worker goroutine. Readings keep their arrival order. MQTT
// message handlers must not block, and the engine publishes from inside
// its handler.
type QueuedSource struct {
	inner Source
	size  int

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
}

// NewQueuedSource buffers up to size readings between inner and the
// subscribed handler.
func NewQueuedSource(inner Source, size int) *QueuedSource {
	if size <= 0 {
		size = 1
	}
	return &QueuedSource{inner: inner, size: size}
}

// Subscribe starts the worker and subscribes to the wrapped source.
// Subscribing twice is a no-op.
func (q *QueuedSource) Subscribe(handler func(Reading)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stop != nil {
		return nil
	}

	queue := make(chan Reading, q.size)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case r := <-queue:
				handler(r)
			}
		}
	}()

	if err := q.inner.Subscribe(func(r Reading) { q.enqueue(queue, r) }); err != nil {
		close(stop)
		<-done
		return err
	}
	q.stop, q.done = stop, done
	return nil
}

// enqueue never blocks; a full queue drops the reading.
func (q *QueuedSource) enqueue(queue chan Reading, r Reading) {
	select {
	case queue <- r:
	default:
		if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("queued source: queue full, %d readings dropped", n)
		}
	}
}

// Unsubscribe stops the wrapped source, then the worker. Readings still
// queued are discarded. It returns once the handler is no longer
// running.
func (q *QueuedSource) Unsubscribe() error {
	q.mu.Lock()
	stop, done := q.stop, q.done
	q.stop, q.done = nil, nil
	q.mu.Unlock()

	if stop == nil {
		return nil
	}
	err := q.inner.Unsubscribe()
	close(stop)
	<-done
	return err
}
