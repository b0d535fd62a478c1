package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/queuekit/queuekit-connector-bull/internal/bull"
	"github.com/queuekit/queuekit-connector-bull/internal/journal"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Registry is the read side of the queue registry.
type Registry interface {
	Get(id keyspace.Identity) (*registry.Handle, error)
	Snapshot() []keyspace.Identity
}

// Sender delivers responses. Emit must drop the message, not queue it, when
// the connection is down.
type Sender interface {
	Connected() bool
	Emit(event string, payload any) error
}

type handler func(ctx context.Context, p *payload) (any, error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l log.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithRecorder journals mutating commands.
func WithRecorder(r journal.Recorder) Option { return func(d *Dispatcher) { d.rec = r } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(d *Dispatcher) { d.tracer = t } }

// WithGate drops requests while ready returns false.
func WithGate(ready func() bool) Option { return func(d *Dispatcher) { d.ready = ready } }

// WithMemoTTL sets how long responses are remembered by request id.
func WithMemoTTL(ttl time.Duration) Option { return func(d *Dispatcher) { d.memoTTL = ttl } }

// Dispatcher executes control-plane requests against the registry.
type Dispatcher struct {
	reg     Registry
	rdb     redis.Cmdable
	out     Sender
	rec     journal.Recorder
	tracer  trace.Tracer
	logger  log.Logger
	ready   func() bool
	memoTTL time.Duration
	memo    *cache.Cache
}

// New returns a Dispatcher. rdb serves reads that bypass queue handles.
func New(reg Registry, rdb redis.Cmdable, out Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		rdb:     rdb,
		out:     out,
		rec:     journal.Nop{},
		tracer:  otel.Tracer("github.com/queuekit/queuekit-connector-bull/internal/dispatch"),
		logger:  log.NewNopLogger(),
		ready:   func() bool { return true },
		memoTTL: time.Minute,
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.WithComponent("dispatch")
	d.memo = cache.New(d.memoTTL, 2*d.memoTTL)
	return d
}

// Serve decodes one inbound request event, executes it and sends the
// response. Malformed events without a usable id are logged and dropped.
func (d *Dispatcher) Serve(ctx context.Context, raw json.RawMessage) {
	if !d.ready() {
		d.logger.Debug("request ignored before handshake")
		return
	}
	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		d.logger.Warn("malformed request", log.Err(err))
		return
	}
	resp := d.Handle(ctx, req)
	if !d.out.Connected() {
		d.logger.Debug("response dropped, disconnected", log.Str("request", req.ID))
		return
	}
	if err := d.out.Emit(protocol.EventResponse, resp); err != nil {
		d.logger.Debug("response dropped", log.Str("request", req.ID), log.Err(err))
	}
}

// Handle executes req and returns its response. It never panics.
func (d *Dispatcher) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if req.ID != "" {
		if v, ok := d.memo.Get(req.ID); ok {
			d.logger.Debug("duplicate request answered from memo", log.Str("request", req.ID))
			return v.(protocol.Response)
		}
	}

	cmd := Command(req.Path)
	ctx, span := d.tracer.Start(ctx, "dispatch "+req.Path, trace.WithAttributes(
		attribute.String("queuekit.request.id", req.ID),
		attribute.String("queuekit.command", req.Path),
	))
	defer span.End()

	start := time.Now()
	result, p, err := d.execute(ctx, cmd, req.Data)
	resp := protocol.Response{Request: req, Result: result}
	if err != nil {
		resp.Result = protocol.NewErrorResult(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("request failed", log.Str("command", req.Path), log.Str("request", req.ID), log.Err(err))
	} else {
		d.logger.Debug("request served", log.Str("command", req.Path), log.Dur("took", time.Since(start)))
	}

	if cmd.Mutating() {
		e := journal.Entry{Kind: journal.KindCommand, Detail: req.Path}
		if p != nil {
			e.Queue = p.identity().Key()
			if p.JobID != "" {
				e.Detail += " " + string(p.JobID)
			}
		}
		if err != nil {
			e.Error = err.Error()
		}
		if rerr := d.rec.Record(ctx, e); rerr != nil {
			d.logger.Warn("journal write failed", log.Err(rerr))
		}
	}

	if req.ID != "" {
		d.memo.SetDefault(req.ID, resp)
	}
	return resp
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command, data json.RawMessage) (result any, p *payload, err error) {
	h := d.handlerFor(cmd)
	if h == nil {
		return nil, nil, &protocol.ValidationError{Field: "path", Reason: fmt.Sprintf("unknown command %q", string(cmd))}
	}
	p, err = parsePayload(data)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", log.Str("command", string(cmd)), log.F("panic", r), log.Str("stack", string(debug.Stack())))
			result = nil
			err = &protocol.EngineError{Op: string(cmd), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	result, err = h(ctx, p)
	return result, p, classify(cmd, p, err)
}

// classify maps engine errors onto the protocol taxonomy.
func classify(cmd Command, p *payload, err error) error {
	if err == nil {
		return nil
	}
	var nf *protocol.NotFoundError
	var ve *protocol.ValidationError
	var ee *protocol.EngineError
	switch {
	case errors.As(err, &nf), errors.As(err, &ve), errors.As(err, &ee):
		return err
	case errors.Is(err, bull.ErrQueueClosed):
		return &protocol.NotFoundError{Kind: "queue", ID: p.identity().Key()}
	case errors.Is(err, bull.ErrJobNotFound):
		return &protocol.NotFoundError{Kind: "job", ID: string(p.JobID)}
	}
	return &protocol.EngineError{Op: string(cmd), Err: err}
}
