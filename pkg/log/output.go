package log

import (
	"io"
	"os"
)

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

// ConsoleOutput writes to stderr.
type ConsoleOutput struct{}

// NewConsoleOutput returns an Output writing to stderr.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

func (ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	_, err := os.Stderr.Write(formatted)
	return err
}

func (ConsoleOutput) Close() error { return nil }

// WriterOutput writes to an arbitrary io.Writer.
type WriterOutput struct {
	W io.Writer
}

func (o WriterOutput) Write(_ *Entry, formatted []byte) error {
	_, err := o.W.Write(formatted)
	return err
}

func (o WriterOutput) Close() error {
	if c, ok := o.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NullOutput discards everything.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }
