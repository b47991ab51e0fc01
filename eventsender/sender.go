// Package eventsender forwards LOG_MESSAGE control-message blobs to an
// external event log over NATS, the external collaborator spec.md §6
// names but leaves out of scope for the core itself. Grounded on the
// teacher's natsclient package's connection-status/reconnect pattern
// (natsclient/client.go), simplified to the one publish path this
// forwarder needs rather than the teacher's full circuit-breaker/
// JetStream-KV client, since the Message Director only ever writes to
// one subject and never reads from NATS.
package eventsender

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mghost99/astron-md/component"
	"github.com/mghost99/astron-md/errors"
)

// LogEnvelope is the msgpack-encoded structure published for every
// LOG_MESSAGE control message, matching spec.md §4.5's "msgpack blob"
// body: the blob is opaque to the MD core, but the forwarder wraps it
// with delivery metadata for the event log consumer.
type LogEnvelope struct {
	Sender    uint64    `msgpack:"sender,omitempty"`
	Payload   []byte    `msgpack:"payload"`
	Timestamp time.Time `msgpack:"timestamp"`
}

// Sender publishes LOG_MESSAGE blobs to a NATS subject. It implements
// control.EventSink and component.LifecycleComponent.
type Sender struct {
	url     string
	subject string
	log     *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
}

// Config configures a Sender. A zero-value URL disables the sender.
type Config struct {
	URL     string
	Subject string
	Log     *slog.Logger
}

// New creates a Sender. Callers should check Enabled before wiring it
// into the daemon.
func New(cfg Config) *Sender {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Sender{url: cfg.URL, subject: cfg.Subject, log: log}
}

// Enabled reports whether the sender has a configured NATS URL.
func (s *Sender) Enabled() bool { return s.url != "" }

// Name implements component.Subsystem.
func (s *Sender) Name() string { return "eventsender" }

// Health implements component.Subsystem.
func (s *Sender) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return component.HealthStatus{Healthy: !s.Enabled(), LastCheck: time.Now()}
	}
	return component.HealthStatus{Healthy: s.conn.IsConnected(), LastCheck: time.Now()}
}

// Start connects to NATS. A connection failure here is transient, not
// fatal: LOG_MESSAGE forwarding is best-effort observability, not a
// routing-correctness requirement (spec.md treats the event logger as
// an external collaborator, not part of the core's delivery guarantee).
func (s *Sender) Start(_ context.Context) error {
	if !s.Enabled() {
		return nil
	}
	conn, err := nats.Connect(s.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.log.Warn("eventsender disconnected from NATS", "error", err)
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "eventsender", "Start", "connect to NATS")
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Stop drains and closes the NATS connection.
func (s *Sender) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.FlushTimeout(timeout)
	s.conn.Close()
	s.conn = nil
	return nil
}

// Emit implements control.EventSink: it wraps blob in a LogEnvelope and
// publishes it. Publish failures are logged, never propagated — a
// LOG_MESSAGE control message never fails routing because its external
// sink is unavailable.
func (s *Sender) Emit(sender uint64, blob []byte) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := msgpack.Marshal(&LogEnvelope{Sender: sender, Payload: blob, Timestamp: time.Now()})
	if err != nil {
		s.log.Error("failed to encode log envelope", "error", err)
		return
	}
	if err := conn.Publish(s.subject, data); err != nil {
		s.log.Warn("failed to publish log envelope", "error", err)
	}
}
