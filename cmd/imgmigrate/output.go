package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"imgmigrate/internal/format"
)

// outputMode carries the persistent --json/--yaml flags.
type outputMode struct {
	json bool
	yaml bool
}

func (m *outputMode) validate() error {
	if m.json && m.yaml {
		return errors.New("--json and --yaml cannot be combined")
	}
	return nil
}

func (m *outputMode) structured() bool {
	return m != nil && (m.json || m.yaml)
}

func (m *outputMode) formatter() format.Formatter {
	if m != nil && m.yaml {
		return format.YAMLFormatter{}
	}
	return format.JSONFormatter{}
}

func (m *outputMode) write(w io.Writer, payload any) error {
	return m.formatter().Write(w, payload)
}

// plainWriter returns w, or io.Discard when structured output owns stdout.
func (m *outputMode) plainWriter(w io.Writer) io.Writer {
	if m.structured() {
		return io.Discard
	}
	return w
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
