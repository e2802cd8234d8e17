package notes

import (
	"context"
	"sync"
)

// Pending is the durability half of an optimistic mutation. The in-memory
// transition has already happened; Pending resolves once the store write does.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// CompletedPending returns a Pending that has already finished with err.
func CompletedPending(err error) *Pending {
	pending := newPending()
	pending.resolve(err)
	return pending
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed when the write has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write finishes or ctx ends. The write itself keeps running after ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the write error once Done is closed, nil before.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// writeQueue runs writes asynchronously while applying writes for the same key in issue order.
type writeQueue struct {
	mu       sync.Mutex
	tails    map[string]*Pending
	inFlight int
	idle     chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{tails: make(map[string]*Pending)}
}

func (q *writeQueue) enqueue(key string, write func() error) *Pending {
	pending := newPending()

	q.mu.Lock()
	previous := q.tails[key]
	q.tails[key] = pending
	q.inFlight++
	q.mu.Unlock()

	go func() {
		if previous != nil {
			<-previous.done
		}
		pending.resolve(write())

		q.mu.Lock()
		if q.tails[key] == pending {
			delete(q.tails, key)
		}
		q.inFlight--
		if q.inFlight == 0 && q.idle != nil {
			close(q.idle)
			q.idle = nil
		}
		q.mu.Unlock()
	}()

	return pending
}

// drain waits until no write is in flight. Writes enqueued while draining are waited for too.
func (q *writeQueue) drain(ctx context.Context) error {
	q.mu.Lock()
	if q.inFlight == 0 {
		q.mu.Unlock()
		return nil
	}
	if q.idle == nil {
		q.idle = make(chan struct{})
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
