package logging

import (
	"io"
	"strings"
	"sync"
	"time"
)

// Level represents a log level
type Level int

const (
	// DebugLevel is per-probe chatter, disabled in production
	DebugLevel Level = iota
	// InfoLevel covers role decisions, bootstrap steps and completed failovers
	InfoLevel
	// WarnLevel marks degraded but self-healing conditions (a failed probe, a failed journal append)
	WarnLevel
	// ErrorLevel marks outcomes an operator has to look at (failed promotion, failed reattach)
	ErrorLevel
)

var levelNames = [...]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// String returns the string representation of a log level
func (l Level) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a level name to a Level, ignoring case. PostgreSQL's
// own severity names are accepted too, so log_min_messages values carry over.
// Anything unrecognised is INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "DEBUG1", "DEBUG2", "DEBUG3", "DEBUG4", "DEBUG5":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR", "FATAL", "PANIC":
		return ErrorLevel
	default:
		// INFO, NOTICE, LOG
		return InfoLevel
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With creates a child logger with the given fields pre-set
	With(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// Format selects the line encoding of a logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// sink is the writer and level shared by a logger and all of its children,
// so a SIGHUP level change reaches every component at once.
type sink struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

func (s *sink) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

func (s *sink) GetLevel() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// JSONLogger writes one JSON object per line
type JSONLogger struct {
	*sink
	fields []Field
}

// TextLogger writes `time LEVEL msg key=value ...` lines for `logging.format: text`
type TextLogger struct {
	*sink
	fields []Field
}

// LogEntry is one JSONLogger line
type LogEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// NopLogger discards everything. Components fall back to it when no logger is configured.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (n NopLogger) With(...Field) Logger { return n }
func (NopLogger) SetLevel(Level)         {}
func (NopLogger) GetLevel() Level        { return InfoLevel }

// NewNopLogger creates a logger that discards all output
func NewNopLogger() Logger {
	return NopLogger{}
}

// TimedOperation logs a bootstrap or reattach step together with its latency
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}
