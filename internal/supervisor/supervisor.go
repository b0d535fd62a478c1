package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/queuekit/queuekit-connector-bull/internal/journal"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Transport is the control-plane connection as the supervisor drives it.
type Transport interface {
	Run(ctx context.Context) error
	Connected() bool
	OnConnect(fn func())
	OnDisconnect(fn func(error))
	EmitWithAck(ctx context.Context, event string, payload any) ([]json.RawMessage, error)
}

// Scanner lists the queues currently present in Redis.
type Scanner interface {
	Scan(ctx context.Context) ([]keyspace.Identity, error)
}

// Reconciler applies a scan to the queue registry.
type Reconciler interface {
	Reconcile(ctx context.Context, current []keyspace.Identity) (added, removed []keyspace.Identity, err error)
}

// State is the connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds the handshake identity and timing.
type Config struct {
	APIKey           string
	ConnectorName    string
	ConnectorVersion string
	// Interval between reconciliation cycles (default 1s).
	Interval time.Duration
	// AckTimeout bounds the wait for the handshake acknowledgement (default 10s).
	AckTimeout time.Duration
}

// Status is a point-in-time view for health and admin endpoints.
type Status struct {
	State         string    `json:"state"`
	Identified    bool      `json:"identified"`
	Cycles        uint64    `json:"cycles"`
	LastReconcile time.Time `json:"lastReconcile,omitzero"`
	LastError     string    `json:"lastError,omitempty"`
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(l log.Logger) Option { return func(s *Supervisor) { s.logger = l } }

// WithRecorder journals connection changes.
func WithRecorder(r journal.Recorder) Option { return func(s *Supervisor) { s.rec = r } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(s *Supervisor) { s.tracer = t } }

// Supervisor owns the transport lifecycle, the identification handshake and
// the reconciliation timer.
type Supervisor struct {
	cfg     Config
	tr      Transport
	scanner Scanner
	reg     Reconciler
	logger  log.Logger
	rec     journal.Recorder
	tracer  trace.Tracer

	state      atomic.Int32
	identified atomic.Bool
	cycles     atomic.Uint64

	mu      sync.Mutex
	root    context.Context
	cancel  context.CancelFunc // current connection epoch
	wg      sync.WaitGroup
	lastRun time.Time
	lastErr error
}

// New returns a Supervisor. Call Run to start it.
func New(tr Transport, scanner Scanner, reg Reconciler, cfg Config, opts ...Option) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	s := &Supervisor{
		cfg:     cfg,
		tr:      tr,
		scanner: scanner,
		reg:     reg,
		logger:  log.NewNopLogger(),
		rec:     journal.Nop{},
		tracer:  otel.Tracer("github.com/queuekit/queuekit-connector-bull/internal/supervisor"),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.WithComponent("supervisor")
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Identified reports whether the handshake of the current connection has
// been acknowledged.
func (s *Supervisor) Identified() bool { return s.identified.Load() }

// Status returns a snapshot of the supervisor's progress.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:         s.State().String(),
		Identified:    s.Identified(),
		Cycles:        s.cycles.Load(),
		LastReconcile: s.lastRun,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Run drives the transport until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.root = ctx
	s.mu.Unlock()

	s.tr.OnConnect(s.handleConnect)
	s.tr.OnDisconnect(s.handleDisconnect)

	s.state.Store(int32(Connecting))
	err := s.tr.Run(ctx)

	s.stopEpoch()
	s.wg.Wait()
	s.state.Store(int32(Disconnected))
	return err
}

func (s *Supervisor) handleConnect() {
	s.state.Store(int32(Connected))
	s.record(journal.Entry{Kind: journal.KindConnection, Detail: "connected"})

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.identified.Store(false)
	ctx, cancel := context.WithCancel(s.root)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.epoch(ctx)
}

func (s *Supervisor) handleDisconnect(err error) {
	s.stopEpoch()
	s.record(journal.Entry{Kind: journal.KindConnection, Detail: "disconnected", Error: errString(err)})
	if ctxDone(s.root) {
		s.state.Store(int32(Disconnected))
		return
	}
	s.state.Store(int32(Connecting))
}

// stopEpoch cancels the current epoch and clears identification. Both happen
// under mu so a late acknowledgement cannot mark a dead epoch identified.
func (s *Supervisor) stopEpoch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identified.Store(false)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// epoch runs for one connection: handshake, one immediate reconciliation,
// then a fixed-interval ticker. Cycles never overlap.
func (s *Supervisor) epoch(ctx context.Context) {
	defer s.wg.Done()

	if !s.identify(ctx) || !s.markIdentified(ctx) {
		return
	}

	s.ReconcileOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Debug("reconciliation timer started", log.Dur("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("reconciliation timer stopped")
			return
		case <-ticker.C:
			s.ReconcileOnce(ctx)
		}
	}
}

// markIdentified sets the identified flag unless the epoch already ended.
func (s *Supervisor) markIdentified(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.identified.Store(true)
	return true
}

// identify sends the handshake and waits for its acknowledgement, retrying
// after each timeout until acknowledged or the epoch ends.
func (s *Supervisor) identify(ctx context.Context) bool {
	msg := protocol.Identify{
		APIKey:           s.cfg.APIKey,
		ConnectorType:    protocol.ConnectorType,
		ConnectorName:    s.cfg.ConnectorName,
		ConnectorVersion: s.cfg.ConnectorVersion,
	}
	for {
		s.logger.Debug("Emitting " + protocol.EventInitialize)
		actx, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
		_, err := s.tr.EmitWithAck(actx, protocol.EventInitialize, msg)
		cancel()
		if err == nil {
			s.logger.Info("Acknowledged " + protocol.EventInitialize)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn("handshake not acknowledged, retrying", log.Err(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.Interval):
		}
	}
}

// ReconcileOnce runs one scan-and-diff cycle. Failures are logged and left
// for the next tick.
func (s *Supervisor) ReconcileOnce(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "reconcile")
	defer span.End()

	err := s.reconcile(ctx, span)
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("reconciliation failed", log.Err(err))
	}
	s.cycles.Add(1)
	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) reconcile(ctx context.Context, span trace.Span) error {
	ids, err := s.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	added, removed, err := s.reg.Reconcile(ctx, ids)
	span.SetAttributes(
		attribute.Int("queuekit.queues", len(ids)),
		attribute.Int("queuekit.added", len(added)),
		attribute.Int("queuekit.removed", len(removed)),
	)
	if len(added) > 0 || len(removed) > 0 {
		s.logger.Debug("reconciled", log.Int("added", len(added)), log.Int("removed", len(removed)))
	}
	return err
}

func (s *Supervisor) record(e journal.Entry) {
	if err := s.rec.Record(context.Background(), e); err != nil {
		s.logger.Warn("journal write failed", log.Err(err))
	}
}

func ctxDone(ctx context.Context) bool {
	return ctx == nil || ctx.Err() != nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
