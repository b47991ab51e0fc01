// Command messaged runs the Message Director: a multi-threaded
// publish/subscribe routing daemon speaking the Astron wire protocol
// over length-prefixed TCP framing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mghost99/astron-md/admin"
	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/component"
	"github.com/mghost99/astron-md/config"
	"github.com/mghost99/astron-md/control"
	"github.com/mghost99/astron-md/datagram"
	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/eventsender"
	"github.com/mghost99/astron-md/metric"
	"github.com/mghost99/astron-md/netendpoint"
	"github.com/mghost99/astron-md/participant"
	"github.com/mghost99/astron-md/pkg/retry"
	"github.com/mghost99/astron-md/routing"
	"github.com/mghost99/astron-md/subscription"
	"github.com/mghost99/astron-md/tlsconfig"
	"github.com/mghost99/astron-md/upstream"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "messaged"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("messaged exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, levelVar, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	safeCfg := config.NewSafeConfig(*cfg)
	d, err := newDaemon(safeCfg, logger, levelVar)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	return d.runWithSignalHandling(cliCfg.ShutdownTimeout)
}

func initializeCLI() (*CLIConfig, *slog.Logger, *slog.LevelVar, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, nil, true, nil
	}
	logger, levelVar := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	return cliCfg, logger, levelVar, false, nil
}

// daemon owns the fully wired subsystem set: the network endpoint, the
// routing engine, the optional upstream link, the optional event
// forwarder, and the optional admin surface. It dispatches accepted
// datagrams to either the control handler or the routing engine
// depending on their first receiver, matching
// MessageDirector::process_datagram's channel-1 special case
// (spec.md §4.5).
type daemon struct {
	log     *slog.Logger
	manager *component.Manager

	index   *subscription.Index
	engine  *routing.Engine
	control *control.Handler
	link    *upstream.Link

	listener *netendpoint.Listener
	events   *eventsender.Sender
	admin    *admin.Server

	tlsCleanup   func()
	fatalChan    chan error
	writeTimeout time.Duration
}

func newDaemon(safeCfg *config.SafeConfig, log *slog.Logger, levelVar *slog.LevelVar) (*daemon, error) {
	cfg := safeCfg.Get()
	registry := metric.NewMetricsRegistry()

	d := &daemon{
		log:          log,
		manager:      component.NewManager(),
		events:       eventsender.New(eventsender.Config{URL: cfg.EventLog.NATSURL, Subject: cfg.EventLog.Subject, Log: log}),
		writeTimeout: cfg.Write.Timeout,
	}

	if cfg.Connect != "" {
		d.link = upstream.New(upstream.Config{
			Addr: cfg.Connect,
			Log:  log,
			Router: routerFunc(func(origin *participant.Participant, dg *datagram.Datagram, writeTimeout time.Duration) error {
				return d.engine.Route(origin, dg, writeTimeout)
			}),
			OnFatal: func(cause error) {
				log.Error("fatal: upstream link lost", "error", cause)
				d.fatal(cause)
			},
			WriteTimeout: cfg.Write.Timeout,
			RetryConfig: retry.Config{
				MaxAttempts:  cfg.ConnectRetry.MaxAttempts,
				InitialDelay: cfg.ConnectRetry.Backoff,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			},
		})
	}

	hooks := subscription.Hooks{}
	if d.link != nil {
		hooks.OnFirstChannel, hooks.OnLastChannel, hooks.OnFirstRange, hooks.OnLastRange = d.link.SubscriptionHooks()
	}
	d.index = subscription.New(hooks)

	var upstreamFwd routing.Upstream
	if d.link != nil {
		upstreamFwd = d.link
	}
	d.engine = routing.New(d.index, upstreamFwd, routing.Options{
		Threaded:        cfg.Threaded,
		QueueCapacity:   cfg.Queue.Capacity,
		Log:             log,
		MetricsRegistry: registry,
	})

	var postRemoveUpstream control.PostRemoveReplicator
	if d.link != nil {
		postRemoveUpstream = d.link
	}
	d.control = control.NewHandler(d.index, d.events, log, postRemoveUpstream)

	tlsCfg, cleanup, err := tlsconfig.Build(context.Background(), cfg.TLS)
	if err != nil {
		return nil, err
	}
	d.tlsCleanup = cleanup

	if cfg.Bind != "" {
		d.listener = netendpoint.NewListener(netendpoint.ListenerConfig{
			Addr:                cfg.Bind,
			TLSConfig:           tlsCfg,
			Log:                 log,
			WriteTimeout:        cfg.Write.Timeout,
			MaxQueueBytes:       cfg.Write.MaxQueueBytes,
			HAProxy:             cfg.HAProxy,
			ControlMessageRate:  cfg.RateLimit.ControlPerSecond,
			ControlMessageBurst: cfg.RateLimit.ControlBurst,
			OnDatagram:          d.dispatch,
			OnDisconnect:        d.onDisconnect,
		})
	}

	if cfg.Admin.Enabled() {
		d.admin = admin.New(admin.Config{
			Addr:     cfg.Admin.Bind,
			Log:      log,
			Manager:  d.manager,
			Registry: registry,
			Snapshot: d.snapshot,
			SetLogLevel: func(level string) error {
				lvl := parseLevel(level)
				levelVar.Set(lvl)
				safeCfg.SetLogLevel(level)
				log.Info("log level changed", "level", level)
				return nil
			},
		})
	}

	return d, nil
}

// dispatch routes an accepted datagram to the control handler when its
// first receiver names the well-known control channel, matching
// process_datagram's is_control_message check, and otherwise submits it
// to the routing engine.
func (d *daemon) dispatch(p *participant.Participant, dg *datagram.Datagram) {
	if len(dg.Receivers) > 0 && dg.Receivers[0] == channel.Control {
		if err := d.control.Handle(p, dg); err != nil {
			d.log.Warn("control message rejected", "participant", p.Name(), "error", err)
		}
		return
	}
	if err := d.engine.Route(p, dg, d.writeTimeout); err != nil {
		d.log.Error("routing failed", "participant", p.Name(), "error", err)
	}
}

// onDisconnect unsubscribes the participant from everything, delivers
// its post-remove buffer, and hands it to the engine's termination
// sweep, matching remove_participant's sequence.
func (d *daemon) onDisconnect(p *participant.Participant, cause error) {
	p.Terminate()
	d.index.UnsubscribeAll(p)

	for _, dg := range p.TakePostRemoves() {
		if err := d.engine.Route(nil, dg, d.writeTimeout); err != nil {
			d.log.Warn("failed to route post-remove datagram", "error", err)
		}
	}

	d.engine.RegisterForSweep(p, func() {
		d.log.Debug("participant destroyed", "participant", p.Name())
	})
}

func (d *daemon) snapshot() admin.ParticipantSnapshot {
	stats := d.index.Stats()
	return admin.ParticipantSnapshot{
		LiveParticipants: stats.LiveParticipants,
		ChannelSubs:      stats.ChannelSubs,
		RangeSubs:        stats.RangeSubs,
	}
}

func (d *daemon) fatal(cause error) {
	select {
	case d.fatalCh() <- cause:
	default:
	}
}

// fatalCh lazily creates the channel a fatal upstream disconnect is
// reported on, since newDaemon constructs the upstream link (which may
// call fatal) before runWithSignalHandling starts consuming it.
func (d *daemon) fatalCh() chan error {
	if d.fatalChan == nil {
		d.fatalChan = make(chan error, 1)
	}
	return d.fatalChan
}

// routerFunc adapts a plain function to upstream.Router.
type routerFunc func(origin *participant.Participant, dg *datagram.Datagram, writeTimeout time.Duration) error

func (f routerFunc) Route(origin *participant.Participant, dg *datagram.Datagram, writeTimeout time.Duration) error {
	return f(origin, dg, writeTimeout)
}

func (d *daemon) runWithSignalHandling(shutdownTimeout time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case cause := <-d.fatalCh():
			return cause
		}
	})

	subsystems := []component.LifecycleComponent{d.engine}
	if d.events.Enabled() {
		subsystems = append(subsystems, d.events)
	}
	if d.listener != nil {
		subsystems = append(subsystems, d.listener)
	}
	if d.link != nil {
		subsystems = append(subsystems, d.link)
	}
	if d.admin != nil {
		subsystems = append(subsystems, d.admin)
	}

	for _, s := range subsystems {
		if err := d.manager.Start(gctx, s); err != nil {
			return cerrors.WrapFatal(err, "messaged", "run", "start subsystem")
		}
	}

	d.log.Info("messaged started", "version", Version)
	err := g.Wait()

	d.log.Info("shutting down")
	if d.tlsCleanup != nil {
		d.tlsCleanup()
	}
	if stopErr := d.manager.Stop(shutdownTimeout); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
