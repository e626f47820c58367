package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/domain/execution"
)

// DefaultMaxSize is the log size at which the file is rotated.
const DefaultMaxSize int64 = 10 * 1024 * 1024

// FileSink appends records to a JSONL file. It implements execution.Sink.
type FileSink struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	now     func() time.Time
	file    *os.File
	size    int64
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithMaxSize sets the rotation threshold. Zero or less disables rotation.
func WithMaxSize(n int64) FileSinkOption {
	return func(s *FileSink) { s.maxSize = n }
}

// WithRotationClock sets the clock used to name rotated files.
func WithRotationClock(now func() time.Time) FileSinkOption {
	return func(s *FileSink) { s.now = now }
}

// NewFileSink opens path for appending, creating it and its directory.
func NewFileSink(path string, opts ...FileSinkOption) (*FileSink, error) {
	s := &FileSink{path: path, maxSize: DefaultMaxSize, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the active log file.
func (s *FileSink) Path() string {
	return s.path
}

// RecordOutcome implements execution.Sink.
func (s *FileSink) RecordOutcome(_ context.Context, report *execution.RunReport, o execution.StepOutcome) error {
	return s.Append(OutcomeRecord(report, o))
}

// RecordFinish implements execution.Sink.
func (s *FileSink) RecordFinish(_ context.Context, report *execution.RunReport) error {
	return s.Append(FinishRecord(report))
}

// Append writes one record as a single line.
func (s *FileSink) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}
	if s.maxSize > 0 && s.size > 0 && s.size+int64(len(data)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Close releases the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileSink) open() error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat audit log: %w", err)
	}
	s.file = file
	s.size = info.Size()
	return nil
}

// rotate moves the current file to name-<timestamp>.ext and starts a new
// one. The timestamp has nanosecond resolution; a name that is still taken
// gets a -N suffix. Linking never replaces an existing file.
func (s *FileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	s.file = nil

	ext := filepath.Ext(s.path)
	base := fmt.Sprintf("%s-%s", strings.TrimSuffix(s.path, ext), s.now().UTC().Format("20060102-150405.000000000"))
	rotated := base + ext
	for seq := 1; ; seq++ {
		err := os.Link(s.path, rotated)
		if err == nil {
			break
		}
		if errors.Is(err, os.ErrNotExist) {
			return s.open()
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		rotated = fmt.Sprintf("%s-%d%s", base, seq, ext)
	}
	if err := os.Remove(s.path); err != nil {
		return err
	}
	return s.open()
}

// ReadRecords parses an audit log. Malformed lines are skipped, so a
// partially written final line does not hide earlier runs.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return DecodeRecords(file)
}

// DecodeRecords parses JSONL records from r.
func DecodeRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.RunID == "" {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read audit log: %w", err)
	}
	return records, nil
}

// MemorySink keeps records in memory (for testing).
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemorySink creates a new in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// RecordOutcome implements execution.Sink.
func (s *MemorySink) RecordOutcome(_ context.Context, report *execution.RunReport, o execution.StepOutcome) error {
	s.append(OutcomeRecord(report, o))
	return nil
}

// RecordFinish implements execution.Sink.
func (s *MemorySink) RecordFinish(_ context.Context, report *execution.RunReport) error {
	s.append(FinishRecord(report))
	return nil
}

// Records returns a copy of the recorded lines.
func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *MemorySink) append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

var (
	_ execution.Sink = (*FileSink)(nil)
	_ execution.Sink = (*MemorySink)(nil)
)
