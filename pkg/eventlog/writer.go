// Package eventlog persists an append-only JSONL trail of conversation
// turns and sandbox lifecycle events, one file per day.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codepilot/pkg/proto"
	"codepilot/pkg/sandbox"
)

// Record kinds.
const (
	KindTurn    = "turn"
	KindSandbox = "sandbox"
)

// Record is one JSONL line: a turn or a sandbox event, tagged by Kind.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	PlanRef   string         `json:"plan_ref,omitempty"`
	Turn      *proto.Turn    `json:"turn,omitempty"`
	Sandbox   *sandbox.Event `json:"sandbox,omitempty"`
}

// Writer appends records to daily rotated JSONL files.
type Writer struct {
	logDir      string
	planRef     string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// NewWriter creates a writer rotating in logDir. planRef is stamped on
// every record so one directory can hold interleaved runs.
func NewWriter(logDir, planRef string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &Writer{logDir: logDir, planRef: planRef}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("initialize log file: %w", err)
	}
	return w, nil
}

// WriteTurn appends a conversation turn.
func (w *Writer) WriteTurn(t proto.Turn) error {
	return w.write(Record{Timestamp: time.Now().UTC(), Kind: KindTurn, PlanRef: w.planRef, Turn: &t})
}

// WriteSandboxEvent appends a sandbox lifecycle event.
func (w *Writer) WriteSandboxEvent(e sandbox.Event) error {
	return w.write(Record{Timestamp: time.Now().UTC(), Kind: KindSandbox, PlanRef: w.planRef, Sandbox: &e})
}

func (w *Writer) write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize record: %w", err)
	}
	if _, err := w.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	return nil
}

func (w *Writer) rotateIfNeeded() error {
	date := time.Now().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	return w.rotate(date)
}

func (w *Writer) rotate(date string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("close current log file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = date
	return nil
}

// CurrentLogFile returns the path of the active log file.
func (w *Writer) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", w.currentDate))
}

// Close closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("close event log file: %w", err)
	}
	return nil
}

// ReadRecords parses every record in one log file.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return records, nil
}

// ListLogFiles returns all event log files in logDir, oldest first.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list log files: %w", err)
	}
	return files, nil
}
