// Package model defines the wire types shared by the agent and the
// collector: events, the batch envelope, and the ingest response.
//
// Field names and JSON casing here are load-bearing: they are the wire
// format between independently-versioned agent and collector builds, so
// changes must stay backward compatible.
package model

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates the tagged Event union on the wire.
type EventType string

const (
	EventTypeLog     EventType = "log"
	EventTypeMetric  EventType = "metric"
	EventTypeTraffic EventType = "traffic"
)

// LogLevel is the severity of a LogEvent.
type LogLevel string

const (
	LogLevelTrace    LogLevel = "trace"
	LogLevelDebug    LogLevel = "debug"
	LogLevelInfo     LogLevel = "info"
	LogLevelWarning  LogLevel = "warning"
	LogLevelError    LogLevel = "error"
	LogLevelCritical LogLevel = "critical"
)

// MetricType is the kind of measurement a MetricEvent carries.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
	MetricTypeSummary   MetricType = "summary"
)

// Protocol is the transport-layer protocol a TrafficEvent observed.
// It is a plain string, so values outside these constants round-trip with
// their original text unchanged.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
)

// Event is the tagged-union interface implemented by LogEvent, MetricEvent
// and TrafficEvent. All three carry a timestamp readable without
// discriminating on the concrete type.
type Event interface {
	EventType() EventType
	EventTimestamp() int64
}

// LogEvent is a single structured log line collected from the host.
type LogEvent struct {
	Timestamp int64             `json:"timestamp"`
	Source    string            `json:"source"`
	Level     LogLevel          `json:"level"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

func (e *LogEvent) EventType() EventType    { return EventTypeLog }
func (e *LogEvent) EventTimestamp() int64   { return e.Timestamp }

// MetricEvent is a single numeric measurement.
type MetricEvent struct {
	Timestamp  int64             `json:"timestamp"`
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	MetricType MetricType        `json:"metric_type"`
	Tags       map[string]string `json:"tags"`
	Unit       *string           `json:"unit,omitempty"`
}

func (e *MetricEvent) EventType() EventType  { return EventTypeMetric }
func (e *MetricEvent) EventTimestamp() int64 { return e.Timestamp }

// TrafficEvent describes a single observed flow or flow-sample.
type TrafficEvent struct {
	Timestamp int64             `json:"timestamp"`
	Protocol  Protocol          `json:"protocol"`
	SrcIP     string            `json:"src_ip"`
	DstIP     string            `json:"dst_ip"`
	SrcPort   uint16            `json:"src_port"`
	DstPort   uint16            `json:"dst_port"`
	Bytes     uint64            `json:"bytes"`
	Packets   uint64            `json:"packets"`
	Metadata  map[string]string `json:"metadata"`
}

func (e *TrafficEvent) EventType() EventType  { return EventTypeTraffic }
func (e *TrafficEvent) EventTimestamp() int64 { return e.Timestamp }

// MarshalEvent encodes an Event as its tagged-union JSON wire form.
func MarshalEvent(e Event) ([]byte, error) {
	switch v := e.(type) {
	case *LogEvent:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*LogEvent
		}{EventTypeLog, v})
	case *MetricEvent:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*MetricEvent
		}{EventTypeMetric, v})
	case *TrafficEvent:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			*TrafficEvent
		}{EventTypeTraffic, v})
	default:
		return nil, fmt.Errorf("model: unknown event type %T", e)
	}
}

// UnmarshalEvent decodes a single tagged-union Event from its JSON wire form.
func UnmarshalEvent(data []byte) (Event, error) {
	var disc struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, fmt.Errorf("model: reading event discriminator: %w", err)
	}

	switch disc.Type {
	case EventTypeLog:
		var e LogEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("model: decoding log event: %w", err)
		}
		return &e, nil
	case EventTypeMetric:
		var e MetricEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("model: decoding metric event: %w", err)
		}
		return &e, nil
	case EventTypeTraffic:
		var e TrafficEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("model: decoding traffic event: %w", err)
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("model: unknown event type %q", disc.Type)
	}
}

// EventSequence is a JSON-(un)marshalable ordered sequence of Events.
type EventSequence []Event

func (s EventSequence) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, len(s))
	for i, e := range s {
		data, err := MarshalEvent(e)
		if err != nil {
			return nil, err
		}
		raws[i] = data
	}
	return json.Marshal(raws)
}

func (s *EventSequence) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("model: decoding event sequence: %w", err)
	}
	out := make(EventSequence, 0, len(raws))
	for _, raw := range raws {
		e, err := UnmarshalEvent(raw)
		if err != nil {
			return err
		}
		out = append(out, e)
	}
	*s = out
	return nil
}
