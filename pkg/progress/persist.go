// Package progress owns every persisted slice of player state: the daily
// tap budget, streak, collection, level, achievements and notification
// flags. Each subsystem loads once at startup, mutates in memory, and
// hands writes to a Persister.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krevetka/krevetka/pkg/platform"
)

// Store is the storage half of the platform adapter.
type Store interface {
	StorageGet(ctx context.Context, keys []string) map[string]string
	StorageSet(ctx context.Context, key, value string) bool
}

type write struct {
	key, value string
	done       chan struct{} // barrier when non-nil
}

// Persister applies writes in submission order on a single background
// goroutine. Save never blocks on I/O. Failed writes are logged and
// dropped.
type Persister struct {
	store Store
	log   platform.Logger

	mu     sync.Mutex
	queue  []write
	closed bool

	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}

	failures atomic.Int64
}

func NewPersister(s Store, log platform.Logger) *Persister {
	if log == nil {
		log = platform.NopLogger()
	}
	p := &Persister{
		store:    s,
		log:      log,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go p.run()
	return p
}

// Save queues key=value.
func (p *Persister) Save(key, value string) {
	p.enqueue(write{key: key, value: value})
}

// SaveMany queues pairs in the order given.
func (p *Persister) SaveMany(pairs ...[2]string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warnf("persist: store closed, dropping %d writes", len(pairs))
		return
	}
	for _, kv := range pairs {
		p.queue = append(p.queue, write{key: kv[0], value: kv[1]})
	}
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) enqueue(w write) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if w.done == nil {
			p.log.Warnf("persist: store closed, dropping write to %s", w.key)
		}
		return false
	}
	p.queue = append(p.queue, w)
	p.mu.Unlock()
	p.signal()
	return true
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush waits until everything queued before the call has been written.
func (p *Persister) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !p.enqueue(write{done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, bounded by ctx, and stops the writer.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
	select {
	case <-p.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failures counts writes the store rejected.
func (p *Persister) Failures() int64 {
	return p.failures.Load()
}

func (p *Persister) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.quit:
			p.drain()
			return
		}
	}
}

func (p *Persister) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		w := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if w.done != nil {
			close(w.done)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ok := p.store.StorageSet(ctx, w.key, w.value)
		cancel()
		if !ok {
			p.failures.Add(1)
			p.log.Warnf("persist: write to %s failed, skipping", w.key)
		}
	}
}
