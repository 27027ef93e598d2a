// Package logx provides structured logging with component-scoped loggers and
// environment-driven debug filtering.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes timestamped, component-tagged lines to stderr.
type Logger struct {
	component string
	logger    *log.Logger
}

// Entry is a structured record of a single log line, retained in the ring
// buffer for diagnostics.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ring keeps the most recent log entries in memory.
type ring struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

type debugSettings struct {
	enabled bool
	domains map[string]bool // nil means all domains
}

//nolint:gochecknoglobals // Shared debug settings and recent-entry buffer
var (
	debugMu sync.RWMutex
	debug   = loadDebugFromEnv()

	recent = &ring{maxSize: 1000}
)

func loadDebugFromEnv() debugSettings {
	s := debugSettings{}
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		s.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		s.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			s.domains[strings.TrimSpace(d)] = true
		}
	}
	return s
}

// SetDebug enables or disables debug logging for the listed domains.
// An empty domain list enables all domains.
func SetDebug(enabled bool, domains ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debug.enabled = enabled
	if len(domains) == 0 {
		debug.domains = nil
		return
	}
	debug.domains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debug.domains[d] = true
	}
}

// DebugEnabled reports whether debug logging is active for the given domain.
func DebugEnabled(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debug.enabled {
		return false
	}
	if debug.domains == nil {
		return true
	}
	return debug.domains[domain]
}

// NewLogger creates a logger scoped to a component (e.g. "orch", "sandbox").
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

// Component returns the component tag of this logger.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	recent.add(Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

// Debug logs a message when debug logging is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabled(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.maxSize {
		r.entries = r.entries[len(r.entries)-r.maxSize:]
	}
}

// RecentEntries returns a copy of the retained log entries, optionally
// filtered by component.
func RecentEntries(component string) []Entry {
	recent.mu.Lock()
	defer recent.mu.Unlock()

	out := make([]Entry, 0, len(recent.entries))
	for _, e := range recent.entries {
		if component != "" && e.Component != component {
			continue
		}
		out = append(out, e)
	}
	return out
}

//nolint:gochecknoglobals // Convenience logger for package-level helpers
var defaultLogger = NewLogger("system")

// Infof logs an informational message on the default logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning on the default logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use when an error must be both surfaced and propagated:
//
//	return logx.Errorf("plan persist failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error.
// Returns nil when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
