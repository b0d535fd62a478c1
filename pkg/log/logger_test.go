package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level Level, f Formatter, opts ...LoggerOption) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	opts = append([]LoggerOption{WithLevel(level), WithFormatter(f), WithOutput(WriterOutput{W: buf})}, opts...)
	return NewLogger(opts...), buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelGate(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel, &TextFormatter{DisableTimestamp: true})
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN  shown") {
		t.Fatalf("missing warn line: %q", out)
	}
}

func TestTextFormatterSortedFields(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel, &TextFormatter{DisableTimestamp: true})
	l.With(Component("registry")).Info("queue cached", Str("key", "bull:emails"), Int("n", 2))
	want := "INFO  queue cached component=registry key=bull:emails n=2\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestJSONFormatterAndRedaction(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &JSONFormatter{}, WithRedactions("api_key"))
	l.Error("handshake failed", Str("api_key", "secret"), Err(errors.New("boom")))
	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["api_key"] != "[REDACTED]" {
		t.Fatalf("api_key not redacted: %v", m["api_key"])
	}
	if m["error"] != "boom" || m["level"] != "ERROR" || m["msg"] != "handshake failed" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestChildSharesLevel(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	child := l.WithComponent("relay")
	l.SetLevel(ErrorLevel)
	child.Warn("dropped")
	if buf.Len() != 0 {
		t.Fatalf("child should follow parent level, got %q", buf.String())
	}
}

func TestApplyConfig(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json", Output: "null"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != DebugLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
}

func TestToStdLogger(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	ToStdLogger(l).Printf("pebble says %d", 1)
	if !strings.Contains(buf.String(), "pebble says 1") || !strings.Contains(buf.String(), "source=stdlib") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
