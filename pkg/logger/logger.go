package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ANSI color codes for console output
const (
	ColorReset        = "\033[0m"
	ColorGreen        = "\033[32m"
	ColorCyan         = "\033[36m"
	ColorBrightRed    = "\033[91m"
	ColorBrightYellow = "\033[93m"
	ColorBrightGray   = "\033[90m"
)

// Column widths for aligned console output
const (
	ServiceNameWidth = 20
	LogLevelWidth    = 7 // icons add +2
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name ("debug", "INFO", ...) to a Level.
// Unknown names resolve to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
	Fields  map[string]string
}

// Logger provides leveled console logging with streaming support
type Logger struct {
	serviceName string
	version     string

	mu             sync.RWMutex
	out            io.Writer
	minLevel       Level
	subscribers    []chan LogEntry
	colorEnabled   bool
	disableConsole bool
}

// New creates a new logger instance
func New(serviceName, version string) *Logger {
	return &Logger{
		serviceName:  serviceName,
		version:      version,
		out:          os.Stdout,
		minLevel:     LevelInfo,
		subscribers:  make([]chan LogEntry, 0),
		colorEnabled: isTerminal(),
	}
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// SetLevel sets the minimum level written to the console and subscribers.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// SetOutput redirects console output. Colors are disabled for non-stdout writers.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	if w != os.Stdout {
		l.colorEnabled = false
	}
}

// Subscribe returns a channel to receive log entries
func (l *Logger) Subscribe() <-chan LogEntry {
	ch := make(chan LogEntry, 100)

	l.mu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.mu.Unlock()

	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe and closes it.
func (l *Logger) Unsubscribe(sub <-chan LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ch := range l.subscribers {
		if ch == sub {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// DisableConsoleOutput disables console output, subscribers still receive entries
func (l *Logger) DisableConsoleOutput() {
	l.mu.Lock()
	l.disableConsole = true
	l.mu.Unlock()
}

func (l *Logger) colorFor(level Level) string {
	switch level {
	case LevelDebug:
		return ColorBrightGray
	case LevelInfo:
		return ColorGreen
	case LevelWarn:
		return ColorBrightYellow
	default:
		return ColorBrightRed
	}
}

// formatServiceName truncates and pads service name for consistent column width
func formatServiceName(serviceName string) string {
	if len(serviceName) > ServiceNameWidth {
		return serviceName[:ServiceNameWidth-1] + "…"
	}
	return fmt.Sprintf("%-*s", ServiceNameWidth, serviceName)
}

// formatLogLevel pads log level for consistent column width and adds visual indicators
func formatLogLevel(level Level) string {
	levelStr := level.String()
	switch level {
	case LevelError, LevelFatal:
		levelStr = "✗ " + levelStr
	case LevelWarn:
		levelStr = "⚠ " + levelStr
	case LevelInfo:
		levelStr = "ℹ " + levelStr
	case LevelDebug:
		levelStr = "◦ " + levelStr
	}
	return fmt.Sprintf("%-*s", LogLevelWidth+2, levelStr)
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	l.mu.RLock()
	if level < l.minLevel {
		l.mu.RUnlock()
		return
	}
	out := l.out
	toConsole := !l.disableConsole && out != nil
	colorEnabled := l.colorEnabled
	l.mu.RUnlock()

	now := time.Now()
	if toConsole {
		timestamp := now.Format("2006-01-02 15:04:05.000")
		color, reset, cyan := "", "", ""
		if colorEnabled {
			color, reset, cyan = l.colorFor(level), ColorReset, ColorCyan
		}
		fmt.Fprintf(out, "%s[%s] [%s] [%s%s%s] %s%s%s\n",
			cyan, timestamp, formatServiceName(l.serviceName), color, formatLogLevel(level), reset,
			message, formatFields(fields), reset)
	}

	entry := LogEntry{
		Time:    now,
		Level:   level.String(),
		Message: message,
		Fields:  fields,
	}
	l.mu.RLock()
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			// Skip if channel is full
		}
	}
	l.mu.RUnlock()
}

func format(message string, args []interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

// Debug logs a debug message with optional formatting
func (l *Logger) Debug(message string, args ...interface{}) {
	l.log(LevelDebug, format(message, args), nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message with optional formatting
func (l *Logger) Info(message string, args ...interface{}) {
	l.log(LevelInfo, format(message, args), nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message with optional formatting
func (l *Logger) Warn(message string, args ...interface{}) {
	l.log(LevelWarn, format(message, args), nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message with optional formatting
func (l *Logger) Error(message string, args ...interface{}) {
	l.log(LevelError, format(message, args), nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...), nil)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(LevelFatal, fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

// WithFields returns a context that attaches fields to every message
func (l *Logger) WithFields(fields map[string]string) *LogContext {
	return &LogContext{
		logger: l,
		fields: fields,
	}
}

// LogContext provides field-based logging
type LogContext struct {
	logger *Logger
	fields map[string]string
}

func (c *LogContext) Debug(message string, args ...interface{}) {
	c.logger.log(LevelDebug, format(message, args), c.fields)
}

func (c *LogContext) Info(message string, args ...interface{}) {
	c.logger.log(LevelInfo, format(message, args), c.fields)
}

func (c *LogContext) Warn(message string, args ...interface{}) {
	c.logger.log(LevelWarn, format(message, args), c.fields)
}

func (c *LogContext) Error(message string, args ...interface{}) {
	c.logger.log(LevelError, format(message, args), c.fields)
}
