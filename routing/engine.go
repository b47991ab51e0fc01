// Package routing implements the Message Director's core routing
// algorithm: given a datagram's receiver channels, look up subscribed
// participants and deliver, then forward upstream. Grounded on
// original_source/src/messagedirector/MessageDirector.cpp's
// process_datagram/route_datagram/routing_thread and
// original_source/src/core/msgtypes.h's threaded-vs-inline dispatch.
package routing

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/component"
	"github.com/mghost99/astron-md/datagram"
	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/metric"
	"github.com/mghost99/astron-md/participant"
	"github.com/mghost99/astron-md/pkg/worker"
	"github.com/mghost99/astron-md/subscription"
)

// Origin identifies the source of a routed datagram: a specific
// participant, or nil for datagrams that arrived from upstream (the
// original's process_datagram(nullptr, dg) call for upstream-sourced
// traffic).
type Origin = *participant.Participant

// Upstream is implemented by the optional parent MD link; routing calls
// it after a locally-originated datagram has been delivered locally.
type Upstream interface {
	Forward(dg *datagram.Datagram) error
}

// task is one unit of routing work submitted to the worker pool.
type task struct {
	origin Origin
	dg     *datagram.Datagram
}

// Engine is the Message Director's routing core: it owns the
// subscription index, drives lookups, delivers to local participants,
// and forwards upstream. Route delivers inline (single-threaded mode) or
// queues onto a worker pool (threaded mode), matching spec.md §4.4/§4.6's
// model-selection.
type Engine struct {
	log      *slog.Logger
	index    *subscription.Index
	upstream Upstream
	pool     *worker.Pool[task]
	threaded bool

	sweepInterval time.Duration
	registry      *registry

	// routing and pending implement the single-threaded mode's
	// re-entrancy guard, matching the original's m_main_is_routing: a
	// handler invoked from deliver may itself call Route synchronously
	// (e.g. a control message that re-publishes). Rather than recurse
	// into deliver while the queue is already being drained, a
	// re-entrant call is appended to pending and drained by the
	// outermost Route call once its own delivery completes.
	routing atomic.Bool
	mu      sync.Mutex
	pending []task
}

// Options configures Engine construction.
type Options struct {
	Threaded      bool
	QueueCapacity int
	Workers       int
	SweepInterval time.Duration
	Log           *slog.Logger

	// MetricsRegistry, if set, registers the routing worker pool's
	// queue-depth/utilization/throughput metrics under MetricsPrefix
	// (defaulting to "routing_pool"). Safe to share across a process
	// since the pool is a single instance, unlike per-connection state.
	MetricsRegistry *metric.MetricsRegistry
	MetricsPrefix   string
}

// New creates a routing engine backed by index. If opts.Threaded is set,
// a worker pool of max(2, runtime.NumCPU()) workers (or opts.Workers if
// positive) drains the routing queue; opts.SweepInterval defaults to
// 50ms, matching the original's schedule_cleanup cadence.
func New(index *subscription.Index, upstream Upstream, opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 50 * time.Millisecond
	}

	e := &Engine{
		log:           opts.Log,
		index:         index,
		upstream:      upstream,
		threaded:      opts.Threaded,
		sweepInterval: opts.SweepInterval,
		registry:      newRegistry(),
	}

	if opts.Threaded {
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
			if workers < 2 {
				workers = 2
			}
		}
		capacity := opts.QueueCapacity
		if capacity <= 0 {
			capacity = 1024
		}
		poolOpts := []worker.Option[task]{}
		if opts.MetricsRegistry != nil {
			prefix := opts.MetricsPrefix
			if prefix == "" {
				prefix = "routing_pool"
			}
			poolOpts = append(poolOpts, worker.WithMetricsRegistry[task](opts.MetricsRegistry, prefix))
		}
		e.pool = worker.NewPool[task](workers, capacity, func(ctx context.Context, t task) error {
			e.deliver(t.origin, t.dg)
			return nil
		}, poolOpts...)
	}

	return e
}

// Name implements component.Subsystem.
func (e *Engine) Name() string { return "routing" }

// Health implements component.Subsystem.
func (e *Engine) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}

// Start starts the worker pool (threaded mode only) and the periodic
// termination sweep.
func (e *Engine) Start(ctx context.Context) error {
	if e.pool != nil {
		if err := e.pool.Start(ctx); err != nil {
			return cerrors.WrapFatal(err, "routing", "Start", "start worker pool")
		}
		go e.sweepLoop(ctx)
	}
	return nil
}

// Stop drains and stops the worker pool, if any.
func (e *Engine) Stop(timeout time.Duration) error {
	if e.pool == nil {
		return nil
	}
	if err := e.pool.Stop(timeout); err != nil {
		return cerrors.WrapTransient(err, "routing", "Stop", "stop worker pool")
	}
	return nil
}

// Route submits a datagram for delivery. In threaded mode it enqueues to
// the worker pool, retrying with backoff on a full queue up to
// writeTimeout before giving up with ErrQueueFull — a deliberate
// generalization of the original's blocking route_datagram, since an
// unbounded block here could deadlock the caller's own event loop
// thread against itself in single-threaded mode. In single-threaded
// mode it delivers inline and immediately runs the termination sweep,
// matching spec.md §4.6 step 7; a re-entrant call made from within a
// handler that deliver invokes is queued rather than recursed into,
// matching the original's m_main_is_routing guard.
func (e *Engine) Route(origin Origin, dg *datagram.Datagram, writeTimeout time.Duration) error {
	if e.pool == nil {
		if !e.routing.CompareAndSwap(false, true) {
			e.mu.Lock()
			e.pending = append(e.pending, task{origin: origin, dg: dg})
			e.mu.Unlock()
			return nil
		}
		defer e.routing.Store(false)

		e.deliver(origin, dg)
		for {
			e.mu.Lock()
			if len(e.pending) == 0 {
				e.mu.Unlock()
				break
			}
			t := e.pending[0]
			e.pending = e.pending[1:]
			e.mu.Unlock()
			e.deliver(t.origin, t.dg)
		}
		e.registry.sweep()
		return nil
	}

	t := task{origin: origin, dg: dg}
	deadline := time.Now().Add(writeTimeout)
	backoff := time.Millisecond
	for {
		err := e.pool.Submit(t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, worker.ErrQueueFull) {
			return cerrors.WrapFatal(err, "routing", "Route", "submit to worker pool")
		}
		if time.Now().After(deadline) {
			return cerrors.WrapTransient(cerrors.ErrQueueFull, "routing", "Route", "submit after retries")
		}
		time.Sleep(backoff)
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
}

// deliver performs the actual lookup/delivery/forward, matching
// process_datagram's body.
func (e *Engine) deliver(origin Origin, dg *datagram.Datagram) {
	subs := e.index.Lookup(dg.Receivers)
	if origin != nil {
		delete(subs, subscription.Subscriber(origin))
	}

	body := dg.Encode()
	for s := range subs {
		p, ok := s.(*participant.Participant)
		if !ok {
			continue
		}
		if p.IsTerminated() {
			continue
		}
		if err := p.Deliver(body); err != nil {
			e.log.Warn("delivery failed", "participant", p.Name(), "error", err)
		}
	}

	if origin != nil && e.upstream != nil {
		if err := e.upstream.Forward(dg); err != nil {
			e.log.Error("upstream forward failed", "error", err)
		}
	}
}

// RegisterForSweep adds p to the set of terminated participants that
// will be destroyed on the next sweep, matching remove_participant's
// insertion into m_terminated_participants.
func (e *Engine) RegisterForSweep(p *participant.Participant, onDestroy func()) {
	e.registry.add(p, onDestroy)
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.registry.sweep()
		}
	}
}

// Subscribers exposes the underlying index for control-message handlers.
func (e *Engine) Subscribers() *subscription.Index { return e.index }

// LookupOne is a convenience wrapper for single-channel lookups used by
// control-message ADD_POST_REMOVE-style handlers that need to know
// whether a channel currently has any subscriber.
func (e *Engine) LookupOne(ch channel.ID) int {
	return len(e.index.Lookup([]channel.ID{ch}))
}
