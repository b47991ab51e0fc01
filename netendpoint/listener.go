package netendpoint

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mghost99/astron-md/component"
	cerrors "github.com/mghost99/astron-md/errors"
)

// Listener accepts downstream TCP connections and spawns a Conn for
// each, matching the original TcpAcceptor/MessageDirector::handle_connection
// pairing. It implements component.LifecycleComponent so cmd/messaged
// can start/stop it uniformly with the daemon's other subsystems.
type Listener struct {
	addr          string
	tlsConfig     *tls.Config
	log           *slog.Logger
	writeTimeout  time.Duration
	maxQueueBytes int
	haproxy       bool
	controlRate   float64
	controlBurst  int
	onDatagram    DatagramHandler
	onDisconnect  DisconnectHandler

	ln      net.Listener
	nextID  atomic.Uint64
	wg      sync.WaitGroup
	healthy atomic.Bool
	lastErr atomic.Value
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Addr          string
	TLSConfig     *tls.Config
	Log           *slog.Logger
	WriteTimeout  time.Duration
	MaxQueueBytes int
	HAProxy       bool
	// ControlMessageRate and ControlMessageBurst bound per-participant
	// control-message throughput (SPEC_FULL.md §3.8). Zero disables the
	// limiter.
	ControlMessageRate  float64
	ControlMessageBurst int
	OnDatagram          DatagramHandler
	OnDisconnect        DisconnectHandler
}

// NewListener creates a Listener from cfg. It does not bind until Start.
func NewListener(cfg ListenerConfig) *Listener {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		addr:          cfg.Addr,
		tlsConfig:     cfg.TLSConfig,
		log:           log,
		writeTimeout:  cfg.WriteTimeout,
		maxQueueBytes: cfg.MaxQueueBytes,
		haproxy:       cfg.HAProxy,
		controlRate:   cfg.ControlMessageRate,
		controlBurst:  cfg.ControlMessageBurst,
		onDatagram:    cfg.OnDatagram,
		onDisconnect:  cfg.OnDisconnect,
	}
}

// Name implements component.Subsystem.
func (l *Listener) Name() string { return "netendpoint" }

// Health implements component.Subsystem.
func (l *Listener) Health() component.HealthStatus {
	detail := ""
	if v := l.lastErr.Load(); v != nil {
		detail = v.(string)
	}
	return component.HealthStatus{Healthy: l.healthy.Load(), LastCheck: time.Now(), Detail: detail}
}

// Start binds the listener and begins accepting connections in a
// background goroutine. A bind failure is fatal, matching
// MessageDirector::handle_error's exit(1) on address-in-use/unavailable.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		l.lastErr.Store(err.Error())
		return cerrors.WrapFatal(err, "netendpoint", "Start", "bind listener")
	}
	if l.tlsConfig != nil {
		ln = tls.NewListener(ln, l.tlsConfig)
	}
	l.ln = ln
	l.healthy.Store(true)

	l.wg.Add(1)
	go l.acceptLoop(ctx)
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.log.Warn("accept failed", "error", err)
			return
		}

		id := l.nextID.Add(1)
		conn, err := NewConn(raw, id, ConnConfig{
			Log:                 l.log,
			WriteTimeout:        l.writeTimeout,
			MaxQueueBytes:       l.maxQueueBytes,
			HAProxy:             l.haproxy,
			ControlMessageRate:  l.controlRate,
			ControlMessageBurst: l.controlBurst,
			OnDatagram:          l.onDatagram,
			OnDisconnect:        l.onDisconnect,
		})
		if err != nil {
			l.log.Error("failed to set up connection", "error", err)
			raw.Close()
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			conn.Serve(ctx)
		}()
	}
}

// Stop closes the listener and waits (up to timeout) for connections to
// finish their read/write loops.
func (l *Listener) Stop(timeout time.Duration) error {
	if l.ln != nil {
		l.ln.Close()
	}
	l.healthy.Store(false)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return cerrors.WrapTransient(cerrors.ErrTimedOut, "netendpoint", "Stop", "wait for connections to close")
	}
}
