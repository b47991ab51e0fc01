// Package participant models a Message Director client: the lifecycle
// state machine (live -> terminated -> destroyed), its post-remove
// datagram buffer, and its send queue. Grounded on
// original_source/src/messagedirector/MessageDirector.cpp's
// add_participant/remove_participant/preroute_post_remove/
// process_terminates, generalized to a Go value the network endpoint and
// routing engine both hold references to instead of the original's
// self-deleting raw-pointer participant.
package participant

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/datagram"
	"github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/pkg/buffer"
)

// State is a participant's lifecycle stage.
type State int32

const (
	// StateLive is a normally operating, connected participant.
	StateLive State = iota
	// StateTerminated means the transport disconnected; the participant
	// is unsubscribed and awaiting the destruction sweep.
	StateTerminated
	// StateDestroyed means the destruction sweep has run for this
	// participant; it must not be looked up or delivered to again.
	StateDestroyed
)

// Sender delivers a datagram body to a specific participant. The
// network endpoint implements this over its connection; a synthetic
// internal participant (the upstream link, the event sender) implements
// it however it needs to.
type Sender interface {
	Send(body []byte) error
}

// Participant is a single MD client: a numeric identity, a lifecycle
// state, and a post-remove buffer of datagrams to deliver exactly once
// on termination.
type Participant struct {
	id     uint64
	name   atomic.Pointer[string]
	url    atomic.Pointer[string]
	sender  Sender
	state   atomic.Int32
	limiter *rate.Limiter

	mu         sync.Mutex
	postRemove []postRemoveEntry
}

// postRemoveEntry pairs a queued post-remove datagram with the sender
// channel it was registered under, so CLEAR_POST_REMOVES can discard
// only the entries registered by a given sender (spec.md §4.5, code
// 9011: "Clear origin's post-remove buffer for that sender").
type postRemoveEntry struct {
	sender channel.ID
	dg     *datagram.Datagram
}

// New creates a live participant identified by id (a process-unique
// correlation id, not a routable channel) delivering through sender.
func New(id uint64, name string, sender Sender) *Participant {
	p := &Participant{id: id, sender: sender}
	p.name.Store(&name)
	empty := ""
	p.url.Store(&empty)
	p.state.Store(int32(StateLive))
	return p
}

// SetControlRateLimit bounds the rate at which control messages
// (spec.md §4.5, codes 9000-9014) originating from this participant are
// accepted, per SPEC_FULL.md §3.8. A nil or non-positive rate leaves
// control messages unbounded.
func (p *Participant) SetControlRateLimit(r rate.Limit, burst int) {
	if r <= 0 {
		p.limiter = nil
		return
	}
	p.limiter = rate.NewLimiter(r, burst)
}

// AllowControl reports whether another control message from this
// participant may be processed right now. A participant with no
// configured limiter always allows.
func (p *Participant) AllowControl() bool {
	if p.limiter == nil {
		return true
	}
	return p.limiter.Allow()
}

// ID returns the participant's process-unique correlation id, satisfying
// subscription.Subscriber.
func (p *Participant) ID() uint64 { return p.id }

// Name returns the participant's connection name (spec.md §4.7
// SET_CON_NAME), used only for logging.
func (p *Participant) Name() string { return *p.name.Load() }

// SetName updates the connection's display name (SET_CON_NAME).
func (p *Participant) SetName(name string) { p.name.Store(&name) }

// URL returns the connection's logged URL (SET_CON_URL).
func (p *Participant) URL() string { return *p.url.Load() }

// SetURL updates the connection's logged URL (SET_CON_URL).
func (p *Participant) SetURL(url string) { p.url.Store(&url) }

// State returns the current lifecycle state.
func (p *Participant) State() State { return State(p.state.Load()) }

// IsTerminated reports whether the participant has left the live set,
// matching the original's is_terminated() guard in process_datagram.
func (p *Participant) IsTerminated() bool {
	return p.State() != StateLive
}

// Deliver sends body to the participant if it is still live. It is a
// no-op, not an error, on a terminated participant: the original drops
// deliveries silently to a participant that is mid-teardown rather than
// treating it as a routing failure.
func (p *Participant) Deliver(body []byte) error {
	if p.IsTerminated() {
		return nil
	}
	return p.sender.Send(body)
}

// Terminate transitions the participant from live to terminated. It is
// idempotent; only the first call returns true.
func (p *Participant) Terminate() bool {
	return p.state.CompareAndSwap(int32(StateLive), int32(StateTerminated))
}

// Destroy transitions a terminated participant to destroyed, the final
// state, matching process_terminates' sweep. It is idempotent.
func (p *Participant) Destroy() bool {
	return p.state.CompareAndSwap(int32(StateTerminated), int32(StateDestroyed))
}

// AddPostRemove registers dg to be delivered once, when this participant
// terminates, per spec.md §3's "post-removed" lifecycle step and the
// original's preroute_post_remove. sender tags the entry so a later
// CLEAR_POST_REMOVES for that same sender can discard it selectively.
func (p *Participant) AddPostRemove(sender channel.ID, dg *datagram.Datagram) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postRemove = append(p.postRemove, postRemoveEntry{sender: sender, dg: dg})
}

// ClearPostRemoves discards every pending post-remove datagram
// registered under sender, without sending them, matching
// CONTROL_CLEAR_POST_REMOVES's per-sender scoping (spec.md §4.5).
func (p *Participant) ClearPostRemoves(sender channel.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.postRemove[:0]
	for _, e := range p.postRemove {
		if e.sender != sender {
			kept = append(kept, e)
		}
	}
	p.postRemove = kept
}

// TakePostRemoves returns and clears every registered post-remove
// datagram, regardless of sender. Called exactly once, by
// remove_participant's equivalent, after the participant has been
// unsubscribed from everything so the datagrams it emits can't loop
// back to itself.
func (p *Participant) TakePostRemoves() []*datagram.Datagram {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*datagram.Datagram, len(p.postRemove))
	for i, e := range p.postRemove {
		out[i] = e.dg
	}
	p.postRemove = nil
	return out
}

// SendQueue is a bounded per-connection outbound queue, adapted from
// pkg/buffer's circular buffer, matching the original's m_send_queue
// plus max-queue-size disconnect threshold (spec.md §4.7, "write queue
// exceeds configured max bytes"). Both the item-count ceiling (the
// buffer's capacity) and the byte-size ceiling (maxBytes) surface as
// ErrNoBufferSpace on Enqueue rather than dropping the frame, since a
// disconnect-on-overflow policy has no use for a policy that silently
// discards instead.
type SendQueue struct {
	buf        buffer.Buffer[[]byte]
	maxBytes   int
	queuedMu   sync.Mutex
	queuedSize int
}

// NewSendQueue creates a send queue bounded by both item count (capacity)
// and total queued bytes (maxBytes).
func NewSendQueue(capacity, maxBytes int) (*SendQueue, error) {
	buf, err := buffer.NewCircularBuffer[[]byte](capacity, buffer.WithOverflowPolicy[[]byte](buffer.DropNewest))
	if err != nil {
		return nil, errors.WrapFatal(err, "participant", "NewSendQueue", "create circular buffer")
	}
	return &SendQueue{buf: buf, maxBytes: maxBytes}, nil
}

// Enqueue appends a frame to the queue. It returns ErrNoBufferSpace if
// doing so would exceed maxBytes or the queue's item-count capacity,
// matching the original's no_buffer_space disconnect condition — the
// underlying buffer uses DropNewest, which reports a full queue by
// returning nil rather than an error, so fullness must be checked
// before Write, not inferred from its result.
func (q *SendQueue) Enqueue(frame []byte) error {
	if q.buf.IsFull() {
		return errors.WrapTransient(errors.ErrNoBufferSpace, "participant", "SendQueue.Enqueue", "check item-count ceiling")
	}

	q.queuedMu.Lock()
	if q.maxBytes > 0 && q.queuedSize+len(frame) > q.maxBytes {
		q.queuedMu.Unlock()
		return errors.WrapTransient(errors.ErrNoBufferSpace, "participant", "SendQueue.Enqueue", "check byte ceiling")
	}
	q.queuedSize += len(frame)
	q.queuedMu.Unlock()

	if err := q.buf.Write(frame); err != nil {
		q.queuedMu.Lock()
		q.queuedSize -= len(frame)
		q.queuedMu.Unlock()
		return errors.WrapTransient(err, "participant", "SendQueue.Enqueue", "write to circular buffer")
	}
	return nil
}

// Dequeue pops the next frame, if any.
func (q *SendQueue) Dequeue() ([]byte, bool) {
	frame, ok := q.buf.Read()
	if ok {
		q.queuedMu.Lock()
		q.queuedSize -= len(frame)
		q.queuedMu.Unlock()
	}
	return frame, ok
}

// QueuedBytes reports the current total queued size.
func (q *SendQueue) QueuedBytes() int {
	q.queuedMu.Lock()
	defer q.queuedMu.Unlock()
	return q.queuedSize
}

// Close releases the queue's underlying buffer. Called once a
// connection's write pump has exited, so the queue can't outlive the
// connection it backs.
func (q *SendQueue) Close() error {
	return q.buf.Close()
}
