package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a config string such as "debug" or "WARN" to a Level.
// Unknown names fall back to INFO and report false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, true
	case "INFO", "":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	}
	return INFO, false
}

// sink is shared by a logger and every child derived from it.
type sink struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	redactPII bool
	now       func() time.Time
}

// Logger provides structured JSON logging with optional PII redaction.
// Fields bound with With are emitted on every entry.
type Logger struct {
	s      *sink
	fields []interface{}
}

// New returns a logger writing JSON lines to w. A nil w means stderr.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{s: &sink{out: w, level: level, redactPII: true, now: time.Now}}
}

var defaultLogger = New(os.Stderr, INFO)

// Default returns the process-wide logger used by the package functions.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.SetLevel(l) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.SetRedactPII(r) }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields) }

func (l *Logger) SetLevel(lv Level) {
	l.s.mu.Lock()
	l.s.level = lv
	l.s.mu.Unlock()
}

func (l *Logger) SetRedactPII(r bool) {
	l.s.mu.Lock()
	l.s.redactPII = r
	l.s.mu.Unlock()
}

// With returns a child logger that adds the given key/value pairs to every
// entry. The child shares the parent's output and level.
func (l *Logger) With(fields ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{s: l.s, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(DEBUG, msg, fields) }
func (l *Logger) Info(msg string, fields ...interface{}) { l.log(INFO, msg, fields) }
func (l *Logger) Warn(msg string, fields ...interface{}) { l.log(WARN, msg, fields) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(ERROR, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []interface{}) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}

	entry := map[string]interface{}{
		"time":  s.now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	// Bound fields first so per-call fields override them.
	for _, kv := range [][]interface{}{l.fields, fields} {
		for i := 0; i < len(kv)-1; i += 2 {
			key := fmt.Sprintf("%v", kv[i])
			val := fmt.Sprintf("%v", kv[i+1])
			if s.redactPII {
				val = redactPIIValue(key, val)
			}
			entry[key] = val
		}
	}

	data, _ := json.Marshal(entry)
	fmt.Fprintln(s.out, string(data))
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	// Redact email fields
	if strings.Contains(key, "email") || strings.Contains(key, "contact") {
		return RedactEmail(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
