package log

import (
	"context"
	"log/slog"
)

// bridgeHandler is a slog.Handler that routes records through the
// formatter/outputs pipeline of a core.
type bridgeHandler struct {
	core  *core
	attrs []slog.Attr
}

func newBridgeHandler(c *core) *bridgeHandler {
	return &bridgeHandler{core: c}
}

// Enabled gates by the core level.
func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.getLevel() <= fromSlogLevel(level)
}

// Handle converts the slog record to an Entry and writes it to every output.
func (h *bridgeHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(Fields, len(h.attrs)+r.NumAttrs())
	put := func(a slog.Attr) bool {
		if _, ok := h.core.redact[a.Key]; ok {
			fields[a.Key] = "[REDACTED]"
			return true
		}
		fields[a.Key] = a.Value.Any()
		return true
	}
	for _, a := range h.attrs {
		put(a)
	}
	r.Attrs(put)

	entry := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
	}

	h.core.mu.Lock()
	defer h.core.mu.Unlock()
	formatted, err := h.core.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range h.core.outputs {
		_ = out.Write(entry, formatted)
	}
	return nil
}

// WithAttrs returns a copy of the handler with additional base attributes.
func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	if len(attrs) > 0 {
		nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	}
	return &nh
}

// WithGroup is accepted but groups are flattened by the formatters.
func (h *bridgeHandler) WithGroup(string) slog.Handler {
	nh := *h
	return &nh
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level <= slog.LevelDebug:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func attrsFromFields(fields []Field) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func attrsToAny(attrs []slog.Attr) []any {
	out := make([]any, len(attrs))
	for i := range attrs {
		out[i] = attrs[i]
	}
	return out
}
