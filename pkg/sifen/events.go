package sifen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// EventType identifies a lifecycle event
type EventType string

const (
	EventRequestBuilt     EventType = "request-built"
	EventRequestSent      EventType = "request-sent"
	EventResponseReceived EventType = "response-received"
	EventParseResult      EventType = "parse-result"
	EventRequestFailed    EventType = "request-failed"
)

// Event is emitted at each lifecycle step. Fields that do not apply to the
// event type are zero.
type Event struct {
	Type       EventType
	Time       time.Time
	RequestID  string
	Operation  Operation
	URL        string
	Route      string
	State      State
	HTTPStatus int
	Bytes      int
	Elapsed    time.Duration
	Code       string
	Err        error
}

// Observer receives lifecycle events. Observe is called synchronously on
// the request goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans events out to several observers
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

// LogObserver writes events as structured log records
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns a LogObserver, using slog.Default for nil
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) Observe(e Event) {
	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		slog.String("request_id", e.RequestID),
		slog.String("operation", string(e.Operation)),
		slog.String("state", e.State.String()),
	}
	if e.URL != "" {
		attrs = append(attrs, slog.String("url", e.URL))
	}
	if e.Route != "" {
		attrs = append(attrs, slog.String("route", e.Route))
	}
	if e.HTTPStatus != 0 {
		attrs = append(attrs, slog.Int("status", e.HTTPStatus))
	}
	if e.Bytes != 0 {
		attrs = append(attrs, slog.Int("bytes", e.Bytes))
	}
	if e.Elapsed != 0 {
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}

	level := slog.LevelDebug
	switch {
	case e.Err != nil:
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	case e.Type == EventParseResult && e.State == StateRejected:
		level = slog.LevelWarn
	case e.Type == EventParseResult:
		level = slog.LevelInfo
	}
	o.Logger.LogAttrs(context.Background(), level, "sifen "+string(e.Type), attrs...)
}

// ParseLevel parses debug, info, warn or error
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewJSONLogger returns a JSON slog logger writing to w at the given level
func NewJSONLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
