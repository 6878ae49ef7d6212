package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"threadwatch/internal/config"
)

const (
	fullTimeLayout  = "2006-01-02T15:04:05Z"
	shortTimeLayout = "15:04:05"
)

// twHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
type twHandler struct {
	w      io.Writer
	runID  string
	layout string
	level  slog.Level
	attrs  []slog.Attr
}

func (h *twHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle assembles the whole record in memory and emits it with a
// single Write, so records from concurrent goroutines never interleave
// mid-line.
func (h *twHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", r.Time.UTC().Format(h.layout), r.Level.String(), h.runID, r.Message)

	// Pre-set attrs, then per-record attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *twHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &twHandler{
		w:      h.w,
		runID:  h.runID,
		layout: h.layout,
		level:  h.level,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *twHandler) WithGroup(string) slog.Handler { return h }

// multiHandler fans records out to several handlers. The file and
// stderr sinks carry different time layouts, so they cannot share one
// handler over a MultiWriter.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// newLogger creates a structured logger writing to stderr and, when
// configured, a log file. The file always gets the full timestamp
// layout; the stderr copy drops the date on a terminal unless the
// config pins a layout or asks for the date.
// It returns the slog.Logger, the open log file (for cleanup), and any
// error.
func newLogger(cfg config.LogConfig, dateInLog, verbose bool, runID string) (*slog.Logger, *os.File, error) {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	layout := cfg.TimeFormat
	if layout == "" {
		layout = fullTimeLayout
	}

	stderrLayout := layout
	if term.IsTerminal(int(os.Stderr.Fd())) && !dateInLog && cfg.TimeFormat == "" {
		stderrLayout = shortTimeLayout
	}

	handlers := []slog.Handler{
		&twHandler{w: os.Stderr, runID: runID, layout: stderrLayout, level: level},
	}

	var logFile *os.File
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		logFile = f
		handlers = append(handlers, &twHandler{w: f, runID: runID, layout: layout, level: level})
	}

	return slog.New(&multiHandler{handlers: handlers}), logFile, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// slogAdapter wraps *slog.Logger to satisfy the watch.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
