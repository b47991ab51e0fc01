package component

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager starts and stops the Message Director's fixed set of subsystems,
// tracking start order so Stop can shut them down in reverse — the same
// discipline the teacher's ComponentManager applies to a dynamic component
// set, simplified here because the subsystem set is fixed at wiring time in
// cmd/messaged rather than discovered from configuration.
type Manager struct {
	mu         sync.Mutex
	managed    map[string]*Managed
	startOrder []string
}

// NewManager creates an empty subsystem manager.
func NewManager() *Manager {
	return &Manager{managed: make(map[string]*Managed)}
}

// Start starts comp and records it for later shutdown. If comp fails to
// start, it is not added to the shutdown order.
func (m *Manager) Start(ctx context.Context, comp LifecycleComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := comp.Name()
	if err := comp.Start(ctx); err != nil {
		m.managed[name] = &Managed{Component: comp, State: StateFailed, LastError: err}
		return fmt.Errorf("start %s: %w", name, err)
	}

	m.managed[name] = &Managed{Component: comp, State: StateStarted, StartOrder: len(m.startOrder)}
	m.startOrder = append(m.startOrder, name)
	return nil
}

// Stop stops every started subsystem in reverse start order, collecting
// (rather than short-circuiting on) individual failures so one slow or
// broken subsystem never prevents the rest from shutting down.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	order := make([]string, len(m.startOrder))
	copy(order, m.startOrder)
	m.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		m.mu.Lock()
		mc := m.managed[name]
		m.mu.Unlock()
		if mc == nil || mc.State != StateStarted {
			continue
		}

		if err := mc.Component.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			m.mu.Lock()
			mc.State = StateFailed
			mc.LastError = err
			m.mu.Unlock()
			continue
		}

		m.mu.Lock()
		mc.State = StateStopped
		m.mu.Unlock()
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %d subsystem(s): %v", len(errs), errs)
	}
	return nil
}

// Health returns the health of every managed subsystem, keyed by name, for
// the admin package's /healthz aggregation.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]HealthStatus, len(m.managed))
	for name, mc := range m.managed {
		out[name] = mc.Component.Health()
	}
	return out
}
