package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface rather than a concrete logger so tests
// can swap in a capture or no-op implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LogLevel controls the minimum severity a logger emits.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// componentLogger writes timestamped lines tagged with a component name.
type componentLogger struct {
	component string
	level     LogLevel
	mu        *sync.Mutex
	out       *log.Logger
}

var (
	defaultOnce sync.Once
	defaultOut  *log.Logger
	defaultMu   sync.Mutex
)

func defaultWriter() *log.Logger {
	defaultOnce.Do(func() {
		var w io.Writer = os.Stderr
		if path := os.Getenv("PARLEY_LOG_FILE"); path != "" {
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				log.Printf("failed to open log file %s: %v", path, err)
			} else {
				w = file
			}
		}
		defaultOut = log.New(w, "", 0)
	})
	return defaultOut
}

// NewComponentLogger returns the process-wide logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{
		component: component,
		level:     levelFromEnv(),
		mu:        &defaultMu,
		out:       defaultWriter(),
	}
}

// NewWriterLogger returns a logger writing to w, used by tests.
func NewWriterLogger(w io.Writer, component string, level LogLevel) Logger {
	return &componentLogger{
		component: component,
		level:     level,
		mu:        &sync.Mutex{},
		out:       log.New(w, "", 0),
	}
}

func levelFromEnv() LogLevel {
	switch os.Getenv("PARLEY_LOG_LEVEL") {
	case "debug":
		return DEBUG
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l *componentLogger) log(level LogLevel, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, l.component, msg)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Println(line)
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }
