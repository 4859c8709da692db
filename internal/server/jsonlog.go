// jsonlog.go - structured logging, JSON in production and plain text in dev.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

// Logger writes structured log entries to a single output.
type Logger struct {
	output     io.Writer
	minLevel   LogLevel
	enableJSON bool
}

type logEntry struct {
	Level   LogLevel       `json:"level"`
	Time    string         `json:"time"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
	Error   string         `json:"error,omitempty"`
	Caller  string         `json:"caller,omitempty"`
}

// DefaultLogger is the process-wide logger, configured from
// NFS_LOG_FORMAT, NFS_LOG_LEVEL and NFS_ENV at init.
var DefaultLogger *Logger

func init() {
	enableJSON := os.Getenv("NFS_LOG_FORMAT") == "json" || os.Getenv("NFS_ENV") == "production"

	level := LogLevelInfo
	if l := LogLevel(os.Getenv("NFS_LOG_LEVEL")); logLevelRank[l] > 0 || l == LogLevelDebug {
		level = l
	}

	DefaultLogger = &Logger{
		output:     os.Stdout,
		minLevel:   level,
		enableJSON: enableJSON,
	}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			file = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *Logger) log(level LogLevel, msg string, fields map[string]any, err error) {
	if logLevelRank[level] < logLevelRank[l.minLevel] {
		return
	}

	entry := logEntry{
		Level:   level,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: msg,
		Fields:  fields,
		Caller:  caller(3),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if l.enableJSON {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(l.output, string(data))
		return
	}

	fmt.Fprintf(l.output, "[%s] %s %s", entry.Level, entry.Time, entry.Message)
	for k, v := range entry.Fields {
		fmt.Fprintf(l.output, " %s=%v", k, v)
	}
	if entry.Error != "" {
		fmt.Fprintf(l.output, " error=%s", entry.Error)
	}
	fmt.Fprintln(l.output)
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(LogLevelDebug, msg, fields, nil) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(LogLevelInfo, msg, fields, nil) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(LogLevelWarn, msg, fields, nil) }
func (l *Logger) Error(msg string, fields map[string]any, err error) {
	l.log(LogLevelError, msg, fields, err)
}

// Package-level shorthands over DefaultLogger.

func Debug(msg string, fields map[string]any) { DefaultLogger.Debug(msg, fields) }
func Info(msg string, fields map[string]any)  { DefaultLogger.Info(msg, fields) }
func Warn(msg string, fields map[string]any)  { DefaultLogger.Warn(msg, fields) }
func Error(msg string, fields map[string]any, err error) {
	DefaultLogger.Error(msg, fields, err)
}
