package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/flowmesh/telemetry/pkg/model"
)

// ConsoleSink writes one human-readable line per event. It is the default
// fallback sink when no other backend is configured or recognized.
type ConsoleSink struct {
	logger *slog.Logger
	w      io.Writer
}

// NewConsole constructs a ConsoleSink writing to stdout.
func NewConsole(logger *slog.Logger) *ConsoleSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSink{logger: logger, w: os.Stdout}
}

// StoreEvents writes each event as a single line.
func (s *ConsoleSink) StoreEvents(_ context.Context, events model.EventSequence) error {
	for _, e := range events {
		fmt.Fprintln(s.w, formatEvent(e))
	}
	return nil
}

func formatEvent(e model.Event) string {
	ts := time.UnixMilli(e.EventTimestamp()).UTC().Format(time.RFC3339)
	switch v := e.(type) {
	case *model.LogEvent:
		return fmt.Sprintf("%s LOG      source=%s level=%s message=%q", ts, v.Source, v.Level, v.Message)
	case *model.MetricEvent:
		return fmt.Sprintf("%s METRIC   name=%s value=%g type=%s", ts, v.Name, v.Value, v.MetricType)
	case *model.TrafficEvent:
		return fmt.Sprintf("%s TRAFFIC  %s %s:%d -> %s:%d bytes=%d packets=%d",
			ts, v.Protocol, v.SrcIP, v.SrcPort, v.DstIP, v.DstPort, v.Bytes, v.Packets)
	default:
		return fmt.Sprintf("%s UNKNOWN  %T", ts, e)
	}
}
