package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var (
	levelNames = map[LogLevel]string{
		DEBUG:  "DEBUG",
		INFO:   "INFO",
		WARN:   "WARN",
		ERROR:  "ERROR",
		SILENT: "SILENT",
	}

	levelColors = map[slog.Level]string{
		slog.LevelDebug: "\033[36m", // Cyan
		slog.LevelInfo:  "\033[32m", // Green
		slog.LevelWarn:  "\033[33m", // Yellow
		slog.LevelError: "\033[31m", // Red
	}

	resetColor = "\033[0m"
)

// slogLevel maps a LogLevel onto the slog scale. SILENT sits above ERROR.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}

// Format selects the output encoding
type Format int

const (
	FormatText Format = iota // [LEVEL] [Module] message
	FormatJSON               // one JSON object per line
)

// Logger provides leveled logging with module support
type Logger struct {
	level *slog.LevelVar
	slog  *slog.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the global logger (call once at startup)
func Init(level LogLevel, output io.Writer, useColor bool) {
	InitWithFormat(level, output, useColor, FormatText)
}

// InitWithFormat is Init with an explicit output format
func InitWithFormat(level LogLevel, output io.Writer, useColor bool, format Format) {
	once.Do(func() {
		defaultLogger = NewWithFormat(level, output, useColor, format)
		slog.SetDefault(defaultLogger.slog)
	})
}

// New creates a new text Logger instance
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	return NewWithFormat(level, output, useColor, FormatText)
}

// NewWithFormat creates a new Logger writing in the given format
func NewWithFormat(level LogLevel, output io.Writer, useColor bool, format Format) *Logger {
	if output == nil {
		output = os.Stderr
	}

	lv := &slog.LevelVar{}
	lv.Set(level.slogLevel())

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: lv})
	} else {
		h = &textHandler{out: output, level: lv, useColor: useColor, mu: &sync.Mutex{}}
	}

	return &Logger{level: lv, slog: slog.New(h)}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DEBUG
	case lv <= slog.LevelInfo:
		return INFO
	case lv <= slog.LevelWarn:
		return WARN
	case lv <= slog.LevelError:
		return ERROR
	default:
		return SILENT
	}
}

// Slog exposes the underlying structured logger
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

func (l *Logger) log(level slog.Level, module string, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if module != "" {
		l.slog.Log(ctx, level, msg, slog.String("module", module))
		return
	}
	l.slog.Log(ctx, level, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(slog.LevelDebug, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(slog.LevelInfo, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(slog.LevelWarn, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(slog.LevelError, module, format, args...)
}

// Module is a logger bound to one module name
type Module struct {
	name string
	l    *Logger // nil means the global logger
}

// For returns a handle that logs under the given module via the global logger
func For(module string) Module {
	return Module{name: module}
}

// For returns a handle that logs under the given module via l
func (l *Logger) For(module string) Module {
	return Module{name: module, l: l}
}

func (m Module) target() *Logger {
	if m.l != nil {
		return m.l
	}
	return defaultLogger
}

// Debug logs a debug message
func (m Module) Debug(format string, args ...interface{}) {
	if t := m.target(); t != nil {
		t.Debug(m.name, format, args...)
	}
}

// Info logs an info message
func (m Module) Info(format string, args ...interface{}) {
	if t := m.target(); t != nil {
		t.Info(m.name, format, args...)
	}
}

// Warn logs a warning message
func (m Module) Warn(format string, args ...interface{}) {
	if t := m.target(); t != nil {
		t.Warn(m.name, format, args...)
	}
}

// Error logs an error message
func (m Module) Error(format string, args ...interface{}) {
	if t := m.target(); t != nil {
		t.Error(m.name, format, args...)
	}
}

// Global logger functions (use default logger)

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	if defaultLogger != nil {
		defaultLogger.SetLevel(level)
	}
}

// GetLevel returns the global log level
func GetLevel() LogLevel {
	if defaultLogger != nil {
		return defaultLogger.GetLevel()
	}
	return INFO
}

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(module, format, args...)
	}
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(module, format, args...)
	}
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(module, format, args...)
	}
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(module, format, args...)
	}
}

// ParseLevel parses a log level string
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// ParseFormat parses a log format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid log format: %s", s)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// textHandler renders records as "2006/01/02 15:04:05.000000 [LEVEL] [Module] message"
type textHandler struct {
	out      io.Writer
	level    *slog.LevelVar
	useColor bool
	module   string
	attrs    []slog.Attr
	mu       *sync.Mutex
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	module := h.module
	var extra []string
	collect := func(a slog.Attr) bool {
		if a.Key == "module" {
			module = a.Value.String()
			return true
		}
		extra = append(extra, a.Key+"="+a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	prefix := fmt.Sprintf("[%s]", levelLabel(r.Level))
	if h.useColor {
		prefix = levelColors[r.Level] + prefix + resetColor
	}
	if module != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, module)
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(ts.Format("2006/01/02 15:04:05.000000"))
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, kv := range extra {
		b.WriteByte(' ')
		b.WriteString(kv)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.module == "" {
		clone.module = name
	}
	return &clone
}

func levelLabel(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
