package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// sink is shared by a logger and every logger derived from it via With.
type sink struct {
	mu          sync.Mutex
	out         io.Writer
	level       ports.Level
	jsonFormat  bool
	includeTime bool
	now         func() time.Time
	labels      map[ports.Level]lipgloss.Style
}

// ConsoleLogger writes structured log lines to a terminal or file, either as
// aligned text or as one JSON object per line.
type ConsoleLogger struct {
	sink   *sink
	fields []ports.Field
}

// ConsoleLoggerOption configures the console logger.
type ConsoleLoggerOption func(*sink)

// WithOutput sets the output writer (default: os.Stderr).
func WithOutput(w io.Writer) ConsoleLoggerOption {
	return func(s *sink) {
		s.out = w
	}
}

// WithLevel sets the minimum log level (default: Info).
func WithLevel(level ports.Level) ConsoleLoggerOption {
	return func(s *sink) {
		s.level = level
	}
}

// WithJSONFormat enables JSON lines output.
func WithJSONFormat(enabled bool) ConsoleLoggerOption {
	return func(s *sink) {
		s.jsonFormat = enabled
	}
}

// WithTimestamp includes a timestamp in log entries.
func WithTimestamp(enabled bool) ConsoleLoggerOption {
	return func(s *sink) {
		s.includeTime = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ConsoleLoggerOption {
	return func(s *sink) {
		s.now = now
	}
}

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(opts ...ConsoleLoggerOption) *ConsoleLogger {
	s := &sink{
		out:         os.Stderr,
		level:       ports.LevelInfo,
		includeTime: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.labels = levelStyles(lipgloss.NewRenderer(s.out))

	return &ConsoleLogger{sink: s}
}

// levelStyles colours level labels. The renderer degrades to plain text when
// the output is not a terminal.
func levelStyles(r *lipgloss.Renderer) map[ports.Level]lipgloss.Style {
	base := r.NewStyle().Width(5)
	return map[ports.Level]lipgloss.Style{
		ports.LevelDebug: base.Foreground(lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}),
		ports.LevelInfo:  base.Foreground(lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}),
		ports.LevelWarn:  base.Foreground(lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}),
		ports.LevelError: base.Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}),
	}
}

// Debug logs a debug message.
func (l *ConsoleLogger) Debug(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelDebug, msg, fields)
}

// Info logs an informational message.
func (l *ConsoleLogger) Info(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *ConsoleLogger) Warn(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *ConsoleLogger) Error(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelError, msg, fields)
}

// With returns a logger that adds fields to every entry and shares this
// logger's output and level.
func (l *ConsoleLogger) With(fields ...ports.Field) ports.Logger {
	return &ConsoleLogger{sink: l.sink, fields: appendFields(l.fields, fields)}
}

// Level returns the minimum log level.
func (l *ConsoleLogger) Level() ports.Level {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// SetLevel sets the minimum log level.
func (l *ConsoleLogger) SetLevel(level ports.Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

func (l *ConsoleLogger) log(_ context.Context, level ports.Level, msg string, fields []ports.Field) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}

	all := appendFields(l.fields, fields)
	var line string
	if s.jsonFormat {
		line = s.formatJSON(level, msg, all)
	} else {
		line = s.formatText(level, msg, all)
	}
	_, _ = fmt.Fprintln(s.out, line)
}

func (s *sink) formatJSON(level ports.Level, msg string, fields []ports.Field) string {
	entry := make(map[string]interface{}, len(fields)+3)
	for _, f := range fields {
		entry[f.Key] = jsonValue(f.Value)
	}
	if s.includeTime {
		entry["time"] = s.now().UTC().Format(time.RFC3339)
	}
	entry["level"] = level.String()
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","msg":"log encode failed: %s"}`, err)
	}
	return string(data)
}

func (s *sink) formatText(level ports.Level, msg string, fields []ports.Field) string {
	var b strings.Builder
	if s.includeTime {
		b.WriteString(s.now().Format("15:04:05"))
		b.WriteByte(' ')
	}
	b.WriteString(s.labels[level].Render(level.String()))
	b.WriteByte(' ')
	b.WriteString(msg)

	for _, f := range sortedFields(fields) {
		fmt.Fprintf(&b, " %s=%s", f.Key, textValue(f.Value))
	}
	return b.String()
}

func appendFields(base, extra []ports.Field) []ports.Field {
	out := make([]ports.Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// sortedFields orders fields by key so text lines are stable; later
// duplicates win.
func sortedFields(fields []ports.Field) []ports.Field {
	byKey := make(map[string]ports.Field, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}
	out := make([]ports.Field, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case error:
		return val.Error()
	case time.Duration:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}

func textValue(v interface{}) string {
	s := fmt.Sprint(jsonValue(v))
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Ensure ConsoleLogger implements Logger.
var _ ports.Logger = (*ConsoleLogger)(nil)
