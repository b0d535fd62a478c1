package bridgerun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	cfgpkg "github.com/queuekit/queuekit-connector-bull/internal/config"
	"github.com/queuekit/queuekit-connector-bull/internal/dispatch"
	"github.com/queuekit/queuekit-connector-bull/internal/journal"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
	"github.com/queuekit/queuekit-connector-bull/internal/relay"
	"github.com/queuekit/queuekit-connector-bull/internal/runtime"
	grpcserver "github.com/queuekit/queuekit-connector-bull/internal/server/grpc"
	httpserver "github.com/queuekit/queuekit-connector-bull/internal/server/http"
	"github.com/queuekit/queuekit-connector-bull/internal/server/http/controllers"
	"github.com/queuekit/queuekit-connector-bull/internal/supervisor"
	"github.com/queuekit/queuekit-connector-bull/internal/tracing"
	"github.com/queuekit/queuekit-connector-bull/internal/transport/socketio"
	logpkg "github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// journalTrimEvery is how often the journal is trimmed to its retention.
const journalTrimEvery = time.Minute

// Options for Run.
type Options struct {
	Config  cfgpkg.Config
	Version string
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// Run starts the connector and blocks until ctx is cancelled or the process
// receives SIGINT/SIGTERM.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("log config: %w", err)
		}
		logger = l
	}
	logpkg.RedirectStdLog(logger)

	shutdownTracing, err := tracing.Setup(sctx, tracing.Options{
		Exporter: cfg.Tracing.Exporter,
		Endpoint: cfg.Tracing.Endpoint,
		Version:  opts.Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(cctx)
	}()

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	instanceID := uuid.NewString()
	logger.Info("Starting Bull connector",
		logpkg.Str("name", cfg.ConnectorName),
		logpkg.Str("version", opts.Version),
		logpkg.Str("instance", instanceID),
		logpkg.Str("backend", cfg.Backend),
		logpkg.Bool("journal", cfg.JournalEnabled()),
	)

	scanner, err := keyspace.NewScanner(rt.Redis(), keyspace.Options{Count: cfg.ScanCount, Filter: cfg.QueueFilter})
	if err != nil {
		return err
	}
	tr, err := socketio.New(socketio.Options{
		URL:        cfg.Backend,
		AckTimeout: cfg.AckTimeout,
		Logger:     logger,
		Header:     http.Header{"User-Agent": []string{"queuekit-connector-bull/" + opts.Version}},
	})
	if err != nil {
		return err
	}

	// Metrics wait for the handshake like requests do; the supervisor is
	// built below because it needs the registry.
	var sup *supervisor.Supervisor
	rel := relay.New(cfg.APIKey, tr, logger, relay.WithGate(func() bool {
		return sup != nil && sup.Identified()
	}))
	reg := registry.New(rt.Redis(), tr,
		registry.WithLogger(logger),
		registry.WithAttach(rel.Attach),
		registry.WithRecorder(rt.Recorder()),
	)
	defer reg.Close()

	sup = supervisor.New(tr, scanner, reg, supervisor.Config{
		APIKey:           cfg.APIKey,
		ConnectorName:    cfg.ConnectorName,
		ConnectorVersion: opts.Version,
		Interval:         cfg.Interval,
		AckTimeout:       cfg.AckTimeout,
	}, supervisor.WithLogger(logger), supervisor.WithRecorder(rt.Recorder()))

	disp := dispatch.New(reg, rt.Redis(), tr,
		dispatch.WithLogger(logger),
		dispatch.WithRecorder(rt.Recorder()),
		dispatch.WithGate(sup.Identified),
	)
	tr.On(protocol.EventRequest, func(raw json.RawMessage) {
		go disp.Serve(sctx, raw)
	})

	var wg sync.WaitGroup
	serve := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(sctx); err != nil && sctx.Err() == nil {
				logger.Error(name+" server failed", logpkg.Err(err))
			}
		}()
	}

	probe := func(ctx context.Context) error {
		if err := rt.CheckHealth(ctx); err != nil {
			return err
		}
		if !sup.Identified() {
			return errors.New("control plane handshake pending")
		}
		return nil
	}
	if cfg.HTTPAddr != "" {
		deps := httpserver.Deps{
			Health: healthFunc(probe),
			Status: sup,
			Queues: reg,
			Info: controllers.Info{
				InstanceID:    instanceID,
				ConnectorName: cfg.ConnectorName,
				Version:       opts.Version,
				Backend:       cfg.Backend,
			},
		}
		if j := rt.Journal(); j != nil {
			deps.Journal = j
		}
		hsrv := httpserver.New(deps, logger.WithComponent("http"))
		serve("http", func(ctx context.Context) error { return hsrv.ListenAndServe(ctx, cfg.HTTPAddr) })
		defer hsrv.Close()
	}
	if cfg.GRPCAddr != "" {
		gsrv := grpcserver.New(probe, grpcserver.WithLogger(logger.WithComponent("grpc")))
		serve("grpc", func(ctx context.Context) error { return gsrv.ListenAndServe(ctx, cfg.GRPCAddr) })
		defer gsrv.Close()
	}
	if j := rt.Journal(); j != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trimJournal(sctx, j, logger)
		}()
	}

	err = sup.Run(sctx)
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Bull connector stopped")
	return nil
}

type healthFunc func(context.Context) error

func (f healthFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func trimJournal(ctx context.Context, j *journal.Journal, logger logpkg.Logger) {
	t := time.NewTicker(journalTrimEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := j.Trim(ctx); err != nil {
				logger.Warn("journal trim failed", logpkg.Err(err))
			} else if n > 0 {
				logger.Debug("journal trimmed", logpkg.Int("removed", n))
			}
		}
	}
}

// ListQueues performs one discovery scan with cfg's Redis settings and filter.
func ListQueues(ctx context.Context, cfg cfgpkg.Config) ([]keyspace.Identity, error) {
	cfg.DataDir = "-"
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	scanner, err := keyspace.NewScanner(rt.Redis(), keyspace.Options{Count: cfg.ScanCount, Filter: cfg.QueueFilter})
	if err != nil {
		return nil, err
	}
	return scanner.Scan(ctx)
}
