package relay

import (
	"context"
	"time"

	"github.com/queuekit/queuekit-connector-bull/internal/bull"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Transport is what the relay needs from the control-plane connection.
type Transport interface {
	Connected() bool
	Emit(event string, payload any) error
}

// Mapping from engine events to telemetry types.
var metricTypes = []struct {
	event bull.Event
	typ   protocol.MetricType
}{
	{bull.EventWaiting, protocol.MetricJobQueued},
	{bull.EventActive, protocol.MetricJobProcessing},
	{bull.EventCompleted, protocol.MetricJobCompleted},
	{bull.EventFailed, protocol.MetricJobFailed},
}

// Option configures a Relay.
type Option func(*Relay)

// WithGate drops metrics while ready returns false, on top of the
// connection check.
func WithGate(ready func() bool) Option { return func(r *Relay) { r.ready = ready } }

// Relay forwards queue lifecycle events as queue-metric messages.
type Relay struct {
	apiKey string
	tr     Transport
	logger log.Logger
	ready  func() bool
	now    func() time.Time
}

// New returns a Relay that stamps metrics with apiKey.
func New(apiKey string, tr Transport, logger log.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r := &Relay{
		apiKey: apiKey,
		tr:     tr,
		logger: logger.WithComponent("relay"),
		ready:  func() bool { return true },
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Attach registers one listener per event type on h. It is meant to be used
// as a registry.AttachFunc; listeners die with the handle.
func (r *Relay) Attach(ctx context.Context, h *registry.Handle) error {
	for _, m := range metricTypes {
		typ := m.typ
		if err := h.Queue.On(ctx, m.event, func(jobID string) {
			r.forward(h, typ, jobID)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) forward(h *registry.Handle, typ protocol.MetricType, jobID string) {
	if !r.tr.Connected() || !r.ready() {
		return
	}
	metric := protocol.QueueMetric{
		Timestamp:   r.now().UTC(),
		APIKey:      r.apiKey,
		QueueName:   h.Identity.Name,
		QueuePrefix: h.Identity.Prefix,
		Type:        typ,
		Data:        protocol.MetricData{JobID: jobID},
	}
	r.logger.Debug("Emitting queue-metric", log.Str("queue", h.Identity.Key()), log.Str("type", string(typ)), log.Str("job", jobID))
	if err := r.tr.Emit(protocol.EventQueueMetric, metric); err != nil {
		r.logger.Debug("queue-metric dropped", log.Err(err))
	}
}
