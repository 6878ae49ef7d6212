package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"threadwatch/internal/config"
)

func TestTwHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		layout  string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			layout:  fullTimeLayout,
			level:   slog.LevelInfo,
			message: "watching thread",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\twatching thread\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			layout:  fullTimeLayout,
			level:   slog.LevelDebug,
			message: "checking thread",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tchecking thread\n",
		},
		{
			name:    "short layout drops the date",
			runID:   "run-789",
			layout:  shortTimeLayout,
			level:   slog.LevelInfo,
			message: "new file",
			want:    "14:30:45\tINFO\trun-789\tnew file\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			layout:  fullTimeLayout,
			level:   slog.LevelInfo,
			message: "new file",
			attrs:   []slog.Attr{slog.String("file", "wg/123/a.jpg"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\tnew file\tfile=wg/123/a.jpg\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &twHandler{w: &buf, runID: tt.runID, layout: tt.layout, level: slog.LevelDebug}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestTwHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &twHandler{w: &buf, runID: "run-1", layout: fullTimeLayout}

	h2 := h.WithAttrs([]slog.Attr{slog.String("thread", "wg/123456")}).(*twHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "new file", 0)
	r.AddAttrs(slog.String("file", "a.jpg"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "thread=wg/123456") {
		t.Errorf("expected pre-set attr thread=wg/123456, got: %q", got)
	}
	if !strings.Contains(got, "file=a.jpg") {
		t.Errorf("expected record attr file=a.jpg, got: %q", got)
	}
}

func TestTwHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &twHandler{w: &buf, runID: "run-1", layout: fullTimeLayout, attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*twHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestTwHandler_Enabled(t *testing.T) {
	h := &twHandler{level: slog.LevelInfo}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = true for an info handler")
	}
	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestTwHandler_ConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadwatch.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating log file: %v", err)
	}

	logger := slog.New(&twHandler{w: f, runID: "run-1", layout: fullTimeLayout, level: slog.LevelInfo})

	const workers, records = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < records; j++ {
				logger.Info("new file", "worker", n, "seq", j)
			}
		}(i)
	}
	wg.Wait()
	if err := f.Close(); err != nil {
		t.Fatalf("closing log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != workers*records {
		t.Fatalf("line count = %d, want %d", len(lines), workers*records)
	}
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 6 || fields[1] != "INFO" || fields[3] != "new file" {
			t.Fatalf("malformed record: %q", line)
		}
	}
}

func TestMultiHandler(t *testing.T) {
	var verbose, quiet bytes.Buffer
	m := &multiHandler{handlers: []slog.Handler{
		&twHandler{w: &verbose, runID: "run-1", layout: fullTimeLayout, level: slog.LevelDebug},
		&twHandler{w: &quiet, runID: "run-1", layout: fullTimeLayout, level: slog.LevelWarn},
	}}

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := m.Handle(context.Background(), slog.NewRecord(ts, slog.LevelInfo, "poll", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := m.Handle(context.Background(), slog.NewRecord(ts, slog.LevelWarn, "trouble", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if got := verbose.String(); !strings.Contains(got, "poll") || !strings.Contains(got, "trouble") {
		t.Errorf("verbose sink = %q, want both records", got)
	}
	quietOut := quiet.String()
	if strings.Contains(quietOut, "poll") {
		t.Errorf("quiet sink got a record below its level: %q", quietOut)
	}
	if !strings.Contains(quietOut, "trouble") {
		t.Errorf("quiet sink = %q, want the warning", quietOut)
	}

	if !m.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = false with a debug-level sink present")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("writes to the configured log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "threadwatch.log")
		cfg := config.LogConfig{Path: path, Level: "info"}

		logger, f, err := newLogger(cfg, false, false, "run-1")
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		if f == nil {
			t.Fatal("newLogger() returned nil file")
		}
		defer f.Close()

		logger.Info("watching thread", "thread", "wg/123456")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}
		if !strings.Contains(string(data), "watching thread") {
			t.Errorf("log file = %q, want the record", data)
		}
		if !strings.Contains(string(data), "thread=wg/123456") {
			t.Errorf("log file = %q, want the attr", data)
		}
	})

	t.Run("verbose overrides the configured level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "threadwatch.log")
		cfg := config.LogConfig{Path: path, Level: "info"}

		logger, f, err := newLogger(cfg, false, true, "run-1")
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		defer f.Close()

		logger.Debug("checking thread")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}
		if !strings.Contains(string(data), "checking thread") {
			t.Errorf("log file = %q, want the debug record", data)
		}
	})

	t.Run("no log file configured", func(t *testing.T) {
		logger, f, err := newLogger(config.LogConfig{Level: "info"}, false, false, "run-1")
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		if logger == nil {
			t.Fatal("newLogger() returned nil logger")
		}
		if f != nil {
			t.Errorf("newLogger() opened a file without a path: %v", f.Name())
		}
	})
}
