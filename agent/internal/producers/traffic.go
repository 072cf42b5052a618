package producers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/ringbuffer"
)

// TrafficProducer samples per-interface network counters on a fixed
// interval and emits the delta since the previous sample as a synthetic
// model.TrafficEvent. It does not capture individual packets or flows;
// it summarizes aggregate byte/packet counts per interface per interval.
type TrafficProducer struct {
	logger   *slog.Logger
	interval time.Duration

	prev     map[string]net.IOCountersStat
	prevTime time.Time
}

// NewTrafficProducer constructs a TrafficProducer. interval must be positive.
func NewTrafficProducer(logger *slog.Logger, interval time.Duration) *TrafficProducer {
	return &TrafficProducer{
		logger:   logger,
		interval: interval,
		prev:     make(map[string]net.IOCountersStat),
	}
}

func (p *TrafficProducer) Name() string { return "traffic" }

func (p *TrafficProducer) Run(ctx context.Context, buf *ringbuffer.Buffer) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sample(buf)
		}
	}
}

func (p *TrafficProducer) sample(buf *ringbuffer.Buffer) {
	counters, err := net.IOCounters(true)
	if err != nil {
		p.logger.Warn("reading network counters", "error", err)
		return
	}

	now := time.Now()
	first := p.prevTime.IsZero()
	p.prevTime = now

	for _, c := range counters {
		prior, had := p.prev[c.Name]
		p.prev[c.Name] = c
		if first || !had {
			continue
		}

		sentDelta := deltaUint64(c.BytesSent, prior.BytesSent)
		recvDelta := deltaUint64(c.BytesRecv, prior.BytesRecv)
		pktsSentDelta := deltaUint64(c.PacketsSent, prior.PacketsSent)
		pktsRecvDelta := deltaUint64(c.PacketsRecv, prior.PacketsRecv)

		if sentDelta == 0 && recvDelta == 0 {
			continue
		}

		push(p.logger, buf, p.Name(), &model.TrafficEvent{
			Timestamp: now.UnixMilli(),
			Protocol:  model.ProtocolTCP,
			SrcIP:     "",
			DstIP:     "",
			SrcPort:   0,
			DstPort:   0,
			Bytes:     sentDelta + recvDelta,
			Packets:   pktsSentDelta + pktsRecvDelta,
			Metadata: map[string]string{
				"interface":    c.Name,
				"bytes_sent":   strconv.FormatUint(sentDelta, 10),
				"bytes_recv":   strconv.FormatUint(recvDelta, 10),
				"packets_sent": strconv.FormatUint(pktsSentDelta, 10),
				"packets_recv": strconv.FormatUint(pktsRecvDelta, 10),
			},
		})
	}
}

func deltaUint64(current, prior uint64) uint64 {
	if current < prior {
		// Counter reset (interface flap, counter wraparound); report
		// the new absolute value rather than a negative delta.
		return current
	}
	return current - prior
}
