package engine

import (
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/PCreations/syncview/internal/view"
)

// defaultDispatchWorkers bounds concurrent snapshot callbacks.
const defaultDispatchWorkers = 16

// dispatcher fans snapshots out to registrations on a worker pool.
//
// Ordering contract: each registration drains its queue with at most one
// worker at a time, so one listener's snapshots arrive in publish order
// even though different listeners run concurrently.
type dispatcher struct {
	pool   *ants.Pool
	logger *slog.Logger

	mu       sync.Mutex
	draining map[string]bool // registration id -> drain in flight
	wg       sync.WaitGroup
}

func newDispatcher(workers int, logger *slog.Logger) (*dispatcher, error) {
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	d := &dispatcher{
		logger:   logger,
		draining: make(map[string]bool),
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		logger.Error("snapshot handler panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// publish enqueues a snapshot for one registration and schedules a drain
// if none is in flight.
func (d *dispatcher) publish(reg *registration, snap view.Snapshot) {
	if !reg.queue.Enqueue(snap) {
		return // unsubscribed
	}
	reg.delivered = true

	d.mu.Lock()
	if d.draining[reg.id] {
		d.mu.Unlock()
		return
	}
	d.draining[reg.id] = true
	d.mu.Unlock()

	d.wg.Add(1)
	if err := d.pool.Submit(func() { d.drain(reg) }); err != nil {
		// pool released during shutdown
		d.wg.Done()
		d.mu.Lock()
		delete(d.draining, reg.id)
		d.mu.Unlock()
	}
}

// drain delivers queued snapshots until the queue empties. The draining
// flag is cleared under the lock before the final emptiness re-check, so a
// publish racing with drain completion always finds either a queued
// snapshot or no drain in flight.
func (d *dispatcher) drain(reg *registration) {
	defer d.wg.Done()
	for {
		snap, ok := reg.queue.TryDequeue()
		if !ok {
			d.mu.Lock()
			if reg.queue.Len() == 0 {
				delete(d.draining, reg.id)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			continue
		}
		reg.handler(snap)
	}
}

// close waits for in-flight deliveries and releases the pool.
func (d *dispatcher) close() {
	d.wg.Wait()
	d.pool.Release()
}
