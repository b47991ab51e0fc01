package routing

import (
	"sync"

	"github.com/mghost99/astron-md/participant"
)

// registry tracks terminated participants awaiting destruction,
// grounded on the original's m_terminated_participants set drained by
// process_terminates.
type registry struct {
	mu      sync.Mutex
	pending []pendingDestroy
}

type pendingDestroy struct {
	p         *participant.Participant
	onDestroy func()
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) add(p *participant.Participant, onDestroy func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, pendingDestroy{p: p, onDestroy: onDestroy})
}

// sweep destroys every pending participant, matching process_terminates.
func (r *registry) sweep() {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, pd := range batch {
		pd.p.Destroy()
		if pd.onDestroy != nil {
			pd.onDestroy()
		}
	}
}
