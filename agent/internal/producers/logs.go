package producers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/ringbuffer"
)

// LogsProducer tails one or more log files, emitting each newly appended
// line as a model.LogEvent. It follows rotation by reopening the file when
// fsnotify reports a Remove or Rename; an in-place truncation is not
// detected.
type LogsProducer struct {
	logger *slog.Logger
	paths  []string
}

// NewLogsProducer constructs a LogsProducer for the given file paths.
func NewLogsProducer(logger *slog.Logger, paths []string) *LogsProducer {
	return &LogsProducer{logger: logger, paths: paths}
}

func (p *LogsProducer) Name() string { return "logs" }

func (p *LogsProducer) Run(ctx context.Context, buf *ringbuffer.Buffer) error {
	if len(p.paths) == 0 {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	tailers := make(map[string]*tailer, len(p.paths))
	for _, path := range p.paths {
		t, err := newTailer(path)
		if err != nil {
			p.logger.Warn("skipping log path", "path", path, "error", err)
			continue
		}
		tailers[path] = t
		if err := watcher.Add(path); err != nil {
			p.logger.Warn("watching log path", "path", path, "error", err)
		}
	}
	defer func() {
		for _, t := range tailers {
			t.Close()
		}
	}()

	var mu sync.Mutex
	emit := func(path string, line string) {
		mu.Lock()
		defer mu.Unlock()
		push(p.logger, buf, p.Name(), &model.LogEvent{
			Timestamp: nowUnix(),
			Source:    path,
			Level:     inferLevel(line),
			Message:   line,
			Fields:    map[string]string{},
			Tags:      []string{},
		})
	}

	// Each tailer starts at the end of its file, so content present at open
	// is skipped; drain anything appended since then before the first
	// watcher event arrives.
	for path, t := range tailers {
		t.drain(emit, path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			t, known := tailers[ev.Name]
			if !known {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				t.reopen()
				if err := watcher.Add(ev.Name); err != nil {
					p.logger.Warn("re-watching rotated log", "path", ev.Name, "error", err)
				}
				continue
			}
			t.drain(emit, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("file watcher error", "error", err)
		}
	}
}

// tailer tracks read position within a single file for incremental
// line-by-line consumption.
type tailer struct {
	path string
	f    *os.File
	r    *bufio.Reader
}

func newTailer(path string) (*tailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &tailer{path: path, f: f, r: bufio.NewReader(f)}, nil
}

func (t *tailer) drain(emit func(path, line string), path string) {
	for {
		line, err := t.r.ReadString('\n')
		if line != "" {
			emit(path, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}
}

func (t *tailer) reopen() {
	t.f.Close()
	f, err := os.Open(t.path)
	if err != nil {
		return
	}
	t.f = f
	t.r = bufio.NewReader(f)
}

func (t *tailer) Close() error {
	if t.f == nil {
		return nil
	}
	return t.f.Close()
}

// inferLevel makes a best-effort guess at a log level from conventional
// prefixes; lines without a recognizable marker default to info.
func inferLevel(line string) model.LogLevel {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "FATAL") || strings.Contains(upper, "PANIC") || strings.Contains(upper, "CRITICAL"):
		return model.LogLevelCritical
	case strings.Contains(upper, "ERROR"):
		return model.LogLevelError
	case strings.Contains(upper, "WARN"):
		return model.LogLevelWarning
	case strings.Contains(upper, "TRACE"):
		return model.LogLevelTrace
	case strings.Contains(upper, "DEBUG"):
		return model.LogLevelDebug
	default:
		return model.LogLevelInfo
	}
}
