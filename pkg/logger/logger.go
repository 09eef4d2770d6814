// Package logger fans structured log calls out to every registered backend.
// Messages carry a bracketed component prefix such as "[Merge]".
package logger

import "sync/atomic"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds the configured backends.
type Logger struct {
	instances []LoggerInstance
}

var current atomic.Pointer[Logger]

// Init replaces the global backends. Until it is called every logging
// function is a no-op.
func Init(instances ...LoggerInstance) {
	current.Store(&Logger{instances: instances})
}

// Add appends a backend to the global logger.
func Add(instance LoggerInstance) {
	for {
		old := current.Load()
		next := &Logger{instances: []LoggerInstance{instance}}
		if old != nil {
			next.instances = append(append([]LoggerInstance(nil), old.instances...), instance)
		}
		if current.CompareAndSwap(old, next) {
			return
		}
	}
}

type level func(LoggerInstance, string, ...any)

func dispatch(write level, message string, keyvals []any) {
	l := current.Load()
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		write(instance, message, keyvals...)
	}
}

// Log writes a message at the default level.
func Log(message string, keyvals ...any) {
	dispatch(LoggerInstance.Log, message, keyvals)
}

func Debug(message string, keyvals ...any) {
	dispatch(LoggerInstance.Debug, message, keyvals)
}

func Info(message string, keyvals ...any) {
	dispatch(LoggerInstance.Info, message, keyvals)
}

func Warn(message string, keyvals ...any) {
	dispatch(LoggerInstance.Warn, message, keyvals)
}

func Error(message string, keyvals ...any) {
	dispatch(LoggerInstance.Error, message, keyvals)
}

// Fatal writes to every backend; console backends exit the process.
func Fatal(message string, keyvals ...any) {
	dispatch(LoggerInstance.Fatal, message, keyvals)
}
