// Package upstream implements the Message Director's single optional
// parent connection: it replicates local subscribe/unsubscribe
// first/last events upward as control messages, forwards
// locally-originated datagrams, and routes datagrams received from the
// parent back into the local routing engine as if received=nil.
// Grounded on original_source/src/messagedirector/MessageDirector.cpp's
// on_add_channel/on_add_range/preroute_post_remove/recall_post_removes
// and receive_disconnect ("Lost connection to upstream md" -> exit(1)).
package upstream

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/component"
	"github.com/mghost99/astron-md/control"
	"github.com/mghost99/astron-md/datagram"
	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/participant"
	"github.com/mghost99/astron-md/pkg/retry"
)

// Router is implemented by the routing engine; the upstream link calls
// it with a nil origin for datagrams that arrived from the parent,
// matching receive_datagram's route_datagram(nullptr, dg).
type Router interface {
	Route(origin *participant.Participant, dg *datagram.Datagram, writeTimeout time.Duration) error
}

// FatalHandler is invoked when the upstream connection is lost after
// having been established, matching receive_disconnect's process exit —
// generalized here to a callback so cmd/messaged decides how the
// process actually exits (via errgroup cancellation) rather than the
// package calling os.Exit itself.
type FatalHandler func(cause error)

// Link is the Message Director's optional connection to a parent MD.
// It owns a synthetic channel identity used to source its own control
// messages upstream, per spec.md §3's "its own unique synthetic channel".
type Link struct {
	addr         string
	log          *slog.Logger
	router       Router
	onFatal      FatalHandler
	writeTimeout time.Duration
	retryConfig  retry.Config

	self *participant.Participant

	mu   sync.Mutex
	conn net.Conn
	fr   datagram.Framer
}

// Config configures a Link.
type Config struct {
	Addr         string
	Log          *slog.Logger
	Router       Router
	OnFatal      FatalHandler
	WriteTimeout time.Duration
	RetryConfig  retry.Config
	// SelfID is a process-unique correlation id for the link's synthetic
	// participant identity; it does not need to be a routable channel.
	SelfID uint64
}

// New creates an upstream link, unconnected.
func New(cfg Config) *Link {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	l := &Link{
		addr:         cfg.Addr,
		log:          log,
		router:       cfg.Router,
		onFatal:      cfg.OnFatal,
		writeTimeout: cfg.WriteTimeout,
		retryConfig:  cfg.RetryConfig,
	}
	l.self = participant.New(cfg.SelfID, "upstream-link", l)
	return l
}

// Name implements component.Subsystem.
func (l *Link) Name() string { return "upstream" }

// Health implements component.Subsystem.
func (l *Link) Health() component.HealthStatus {
	l.mu.Lock()
	connected := l.conn != nil
	l.mu.Unlock()
	return component.HealthStatus{Healthy: connected, LastCheck: time.Now()}
}

// Start dials the parent, retrying per l.retryConfig for the initial
// connection only — once connected, any subsequent loss is fatal
// (matching the original: there is no reconnect logic in
// receive_disconnect, only exit(1)).
func (l *Link) Start(ctx context.Context) error {
	conn, err := retry.DoWithResult(ctx, l.retryConfig, func() (net.Conn, error) {
		return net.Dial("tcp", l.addr)
	})
	if err != nil {
		return cerrors.WrapFatal(err, "upstream", "Start", "connect to parent MD")
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	go l.readLoop(ctx)
	return nil
}

// Stop closes the upstream connection.
func (l *Link) Stop(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	return nil
}

func (l *Link) readLoop(ctx context.Context) {
	buf := make([]byte, 65536)
	for {
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := l.fr.Feed(buf[:n])
			if ferr != nil {
				l.fatal(ferr)
				return
			}
			for _, body := range frames {
				dg, derr := datagram.Decode(body)
				if derr != nil {
					l.log.Error("truncated datagram from upstream", "error", derr)
					continue
				}
				if rerr := l.router.Route(nil, dg, l.writeTimeout); rerr != nil {
					l.log.Error("failed to route upstream datagram locally", "error", rerr)
				}
			}
		}
		if err != nil {
			l.fatal(err)
			return
		}
	}
}

func (l *Link) fatal(cause error) {
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()

	wrapped := cerrors.WrapFatal(cause, "upstream", "readLoop", "read from parent MD")
	l.log.Error("lost connection to upstream MD", "error", wrapped)
	if l.onFatal != nil {
		l.onFatal(wrapped)
	}
}

// Forward sends a locally-originated datagram to the parent.
func (l *Link) Forward(dg *datagram.Datagram) error {
	return l.Send(dg.Encode())
}

// Send implements participant.Sender for the link's own synthetic
// participant, framing and writing body directly (the upstream link has
// no send queue — a single outbound socket with no fan-in of many
// connections doesn't need one).
func (l *Link) Send(body []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return cerrors.WrapTransient(cerrors.ErrUpstreamLost, "upstream", "Send", "check connection")
	}

	if l.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	}
	frame := datagram.EncodeFrame(body)
	if _, err := conn.Write(frame); err != nil {
		return cerrors.WrapTransient(err, "upstream", "Send", "write frame")
	}
	return nil
}

// SubscriptionHooks returns the subscription.Hooks the local index
// should invoke so first/last subscribe events are replicated upstream,
// matching on_add_channel/on_remove_channel/on_add_range/on_remove_range.
func (l *Link) SubscriptionHooks() (onFirstChannel func(channel.ID), onLastChannel func(channel.ID), onFirstRange func(channel.Range), onLastRange func(channel.Range)) {
	send := func(msg *control.Message) {
		if err := l.Send(controlDatagram(msg)); err != nil {
			l.log.Warn("failed to replicate subscription upstream", "error", err)
		}
	}
	return func(ch channel.ID) { send(&control.Message{Type: control.AddChannel, Channel: ch}) },
		func(ch channel.ID) { send(&control.Message{Type: control.RemoveChannel, Channel: ch}) },
		func(r channel.Range) { send(&control.Message{Type: control.AddRange, Lo: r.Lo, Hi: r.Hi}) },
		func(r channel.Range) { send(&control.Message{Type: control.RemoveRange, Lo: r.Lo, Hi: r.Hi}) }
}

// PreroutePostRemove replicates a post-remove registration upstream,
// matching preroute_post_remove.
func (l *Link) PreroutePostRemove(sender channel.ID, blob []byte) {
	_ = l.Send(controlDatagram(&control.Message{Type: control.AddPostRemove, Sender: sender, Blob: blob}))
}

// RecallPostRemoves replicates a post-remove buffer clear upstream,
// matching recall_post_removes.
func (l *Link) RecallPostRemoves(sender channel.ID) {
	_ = l.Send(controlDatagram(&control.Message{Type: control.ClearPostRemoves, Sender: sender}))
}

// controlDatagram wraps a control message body in a routable datagram
// addressed to channel.Control, since control.Encode alone only
// produces a body — the parent MD's datagram.Decode requires the
// receiver-count/receiver-list header on every frame it reads,
// including control traffic.
func controlDatagram(msg *control.Message) []byte {
	return datagram.New([]channel.ID{channel.Control}, control.Encode(msg)).Encode()
}

// Self returns the link's synthetic participant identity.
func (l *Link) Self() *participant.Participant { return l.self }
