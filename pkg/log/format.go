package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
}

// Formatter renders an Entry into bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// TextFormatter renders "time LEVEL message key=value ..." lines with keys
// sorted for stable output.
type TextFormatter struct {
	// TimestampFormat defaults to RFC3339 with milliseconds.
	TimestampFormat string
	// DisableTimestamp omits the leading timestamp (useful in tests).
	DisableTimestamp bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(e *Entry) ([]byte, error) {
	var b bytes.Buffer
	if !f.DisableTimestamp {
		tf := f.TimestampFormat
		if tf == "" {
			tf = "2006-01-02T15:04:05.000Z07:00"
		}
		b.WriteString(e.Timestamp.Format(tf))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", e.Level.String(), e.Message)
	for _, k := range sortedKeys(e.Fields) {
		fmt.Fprintf(&b, " %s=%v", k, quoteIfNeeded(e.Fields[k]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// JSONFormatter renders one JSON object per line.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(e *Entry) ([]byte, error) {
	m := make(map[string]interface{}, len(e.Fields)+3)
	for k, v := range e.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[k] = v
	}
	m["time"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	m["level"] = e.Level.String()
	m["msg"] = e.Message
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteIfNeeded(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	for _, r := range s {
		if r == ' ' || r == '=' || r == '"' {
			return fmt.Sprintf("%q", s)
		}
	}
	return s
}
