package log

import (
	stdlog "log"
	"strings"
)

type stdWriter struct {
	logger Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	w.logger.Info(msg, Str("source", "stdlib"))
	return len(p), nil
}

// ToStdLogger adapts a Logger to *log.Logger at info level.
func ToStdLogger(l Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{logger: l}, "", 0)
}

// RedirectStdLog points the standard library's default logger at l.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{logger: l})
}
