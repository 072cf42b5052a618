package model

import "testing"

func TestMarshalUnmarshalEventRoundTrip(t *testing.T) {
	cases := []Event{
		&LogEvent{
			Timestamp: 123,
			Source:    "test",
			Level:     LogLevelInfo,
			Message:   "test",
			Fields:    map[string]string{},
			Tags:      []string{},
		},
		&MetricEvent{
			Timestamp:  456,
			Name:       "cpu.load",
			Value:      0.42,
			MetricType: MetricTypeGauge,
			Tags:       map[string]string{"host": "a1"},
		},
		&TrafficEvent{
			Timestamp: 789,
			Protocol:  ProtocolTCP,
			SrcIP:     "10.0.0.1",
			DstIP:     "10.0.0.2",
			SrcPort:   443,
			DstPort:   51000,
			Bytes:     1024,
			Packets:   7,
			Metadata:  map[string]string{},
		},
	}

	for _, want := range cases {
		data, err := MarshalEvent(want)
		if err != nil {
			t.Fatalf("MarshalEvent(%T): %v", want, err)
		}
		got, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("UnmarshalEvent(%T): %v", want, err)
		}
		if got.EventType() != want.EventType() {
			t.Fatalf("type mismatch: got %s want %s", got.EventType(), want.EventType())
		}
		if got.EventTimestamp() != want.EventTimestamp() {
			t.Fatalf("timestamp mismatch: got %d want %d", got.EventTimestamp(), want.EventTimestamp())
		}
	}
}

func TestEventSequenceRoundTrip(t *testing.T) {
	seq := EventSequence{
		&LogEvent{Timestamp: 1, Source: "a", Level: LogLevelDebug, Message: "m", Fields: map[string]string{}, Tags: []string{}},
		&MetricEvent{Timestamp: 2, Name: "n", Value: 1, MetricType: MetricTypeCounter, Tags: map[string]string{}},
	}

	data, err := seq.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var out EventSequence
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if len(out) != len(seq) {
		t.Fatalf("got %d events, want %d", len(out), len(seq))
	}
	if out[0].EventType() != EventTypeLog || out[1].EventType() != EventTypeMetric {
		t.Fatalf("unexpected event order/types: %v", out)
	}
}

func TestUnmarshalEventUnknownType(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type":"bogus"}`))
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
