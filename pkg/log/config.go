package log

import (
	"fmt"
	"os"
	"strings"
)

// Config declares how to build a process logger.
type Config struct {
	Level  string   `json:"level"`
	Format string   `json:"format"`
	Output string   `json:"output"`
	Redact []string `json:"redact"`
}

// ApplyConfig builds a Logger from cfg. Format is "text" or "json"; Output is
// "console" (default), "null" or a file path.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	var output Output
	switch cfg.Output {
	case "", "console", "stderr":
		output = NewConsoleOutput()
	case "null":
		output = NullOutput{}
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("log: open output: %w", err)
		}
		output = WriterOutput{W: f}
	}

	return NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(output),
		WithRedactions(cfg.Redact...),
	), nil
}
