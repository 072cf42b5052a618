package producers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gopsutilprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/ringbuffer"
)

// MetricsProducer samples host/process metrics on a fixed interval and, if
// configured, scrapes remote Prometheus exposition endpoints and emits each
// sample as a model.MetricEvent.
type MetricsProducer struct {
	logger     *slog.Logger
	interval   time.Duration
	scrapeURLs []string
	httpClient *http.Client

	proc *gopsutilprocess.Process
}

// NewMetricsProducer constructs a MetricsProducer. interval must be positive.
func NewMetricsProducer(logger *slog.Logger, interval time.Duration, scrapeURLs []string) *MetricsProducer {
	proc, _ := gopsutilprocess.NewProcess(int32(os.Getpid()))
	return &MetricsProducer{
		logger:     logger,
		interval:   interval,
		scrapeURLs: scrapeURLs,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		proc:       proc,
	}
}

func (p *MetricsProducer) Name() string { return "metrics" }

func (p *MetricsProducer) Run(ctx context.Context, buf *ringbuffer.Buffer) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sampleHost(buf)
			p.sampleProcess(buf)
			for _, url := range p.scrapeURLs {
				if err := p.scrape(buf, url); err != nil {
					p.logger.Warn("metrics scrape failed", "url", url, "error", err)
				}
			}
		}
	}
}

func (p *MetricsProducer) sampleHost(buf *ringbuffer.Buffer) {
	now := time.Now().UnixMilli()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		push(p.logger, buf, p.Name(), &model.MetricEvent{
			Timestamp:  now,
			Name:       "host.cpu.percent",
			Value:      percents[0],
			MetricType: model.MetricTypeGauge,
			Tags:       map[string]string{},
			Unit:       strPtr("percent"),
		})
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		push(p.logger, buf, p.Name(), &model.MetricEvent{
			Timestamp:  now,
			Name:       "host.memory.used_percent",
			Value:      vm.UsedPercent,
			MetricType: model.MetricTypeGauge,
			Tags:       map[string]string{},
			Unit:       strPtr("percent"),
		})
	}
}

func (p *MetricsProducer) sampleProcess(buf *ringbuffer.Buffer) {
	if p.proc == nil {
		return
	}
	now := time.Now().UnixMilli()
	pid := fmt.Sprintf("%d", os.Getpid())

	if cpuPct, err := p.proc.CPUPercent(); err == nil {
		push(p.logger, buf, p.Name(), &model.MetricEvent{
			Timestamp:  now,
			Name:       "process.cpu.percent",
			Value:      cpuPct,
			MetricType: model.MetricTypeGauge,
			Tags:       map[string]string{"pid": pid},
			Unit:       strPtr("percent"),
		})
	}
	if memInfo, err := p.proc.MemoryInfo(); err == nil {
		push(p.logger, buf, p.Name(), &model.MetricEvent{
			Timestamp:  now,
			Name:       "process.memory.rss_bytes",
			Value:      float64(memInfo.RSS),
			MetricType: model.MetricTypeGauge,
			Tags:       map[string]string{"pid": pid},
			Unit:       strPtr("bytes"),
		})
	}
}

// scrape fetches a remote Prometheus text-exposition endpoint and emits one
// MetricEvent per exposed sample.
func (p *MetricsProducer) scrape(buf *ringbuffer.Buffer, url string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scrape %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body from %s: %w", url, err)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("parsing exposition format from %s: %w", url, err)
	}

	now := time.Now().UnixMilli()
	for name, mf := range families {
		metricType := model.MetricTypeGauge
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			metricType = model.MetricTypeCounter
		case dto.MetricType_HISTOGRAM, dto.MetricType_SUMMARY:
			metricType = model.MetricTypeHistogram
		}

		for _, m := range mf.GetMetric() {
			tags := make(map[string]string, len(m.GetLabel())+1)
			tags["source_url"] = url
			for _, lbl := range m.GetLabel() {
				tags[lbl.GetName()] = lbl.GetValue()
			}
			push(p.logger, buf, p.Name(), &model.MetricEvent{
				Timestamp:  now,
				Name:       name,
				Value:      metricValue(m),
				MetricType: metricType,
				Tags:       tags,
			})
		}
	}
	return nil
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	case m.Summary != nil:
		return m.Summary.GetSampleSum()
	case m.Histogram != nil:
		return m.Histogram.GetSampleSum()
	default:
		return 0
	}
}
