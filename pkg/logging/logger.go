// Package logging provides the structured logger the Controller side of a
// Run's Log capability is built on (spec.md §3's BuildContext.log; see
// pkg/boundarylog for the Executor-side half of the same capability).
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kilnforge/filepool/pkg/model"
)

// Level orders the four severities a Logger accepts, matching
// model.LogLevel but as a comparable int so filtering is a single
// comparison.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Format selects the output encoding.
type Format int

const (
	TextFormat Format = iota
	JSONFormat
)

// entry is one emitted log record.
type entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	RunID     string         `json:"runId,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Config configures a Logger.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	Component string
}

// DefaultConfig returns a text logger at Info level writing to stdout.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Format: TextFormat, Output: os.Stdout}
}

// Logger is a structured logger implementing model.Logger, so it can be
// installed directly as a Run's Log capability on the Controller side.
type Logger struct {
	mu        sync.Mutex
	level     Level
	format    Format
	output    io.Writer
	component string
	runID     string
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Logger{level: cfg.Level, format: cfg.Format, output: cfg.Output, component: cfg.Component}
}

// WithComponent returns a derived Logger tagging every record with
// component, e.g. "pool" or "dashboard".
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{level: l.level, format: l.format, output: l.output, component: component, runID: l.runID}
}

// WithRun returns a derived Logger tagging every record with runID, so
// dashboard/log output for a single build invocation can be grouped
// (SPEC_FULL.md's Run.ID addition).
func (l *Logger) WithRun(runID uuid.UUID) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{level: l.level, format: l.format, output: l.output, component: l.component, runID: runID.String()}
}

func (l *Logger) enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) write(level Level, message string, fields map[string]any) {
	if !l.enabled(level) {
		return
	}
	l.mu.Lock()
	e := entry{Timestamp: time.Now(), Level: level.String(), Component: l.component, RunID: l.runID, Message: message, Fields: fields}
	out := l.output
	format := l.format
	l.mu.Unlock()

	var line string
	if format == JSONFormat {
		data, _ := json.Marshal(e)
		line = string(data) + "\n"
	} else {
		line = formatText(e)
	}
	_, _ = out.Write([]byte(line))
}

func formatText(e entry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteString("]")
	if e.Component != "" {
		b.WriteString(" (")
		b.WriteString(e.Component)
		b.WriteString(")")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for k, v := range e.Fields {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("]")
	}
	b.WriteString("\n")
	return b.String()
}

// messageText renders a Log/Info/Warn/Error message argument (a string or
// an error, per model.Logger's contract) into text.
func messageText(message any) string {
	switch m := message.(type) {
	case nil:
		return ""
	case string:
		return m
	case error:
		return m.Error()
	default:
		return fmt.Sprintf("%v", m)
	}
}

func (l *Logger) Log(message any, data map[string]any) {
	if _, ok := message.(error); ok {
		l.Error(message, data)
		return
	}
	l.Info(message, data)
}

func (l *Logger) Info(message any, data map[string]any) { l.write(InfoLevel, messageText(message), data) }
func (l *Logger) Warn(message any, data map[string]any) { l.write(WarnLevel, messageText(message), data) }
func (l *Logger) Error(message any, data map[string]any) {
	l.write(ErrorLevel, messageText(message), data)
}
func (l *Logger) Debug(message any, data map[string]any) {
	l.write(DebugLevel, messageText(message), data)
}

var _ model.Logger = (*Logger)(nil)
