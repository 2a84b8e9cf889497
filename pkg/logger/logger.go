// Package logger provides structured logging utilities.
package logger

import (
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxSQLFieldLen caps SQL text attached to log lines.
const maxSQLFieldLen = 512

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// New creates a JSON logger for production.
func New(level string) (*Logger, error) {
	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(parseLevel(level)),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "component",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    map[string]interface{}{"service": "sqlchat"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// NewDevelopment creates a development logger with pretty output.
func NewDevelopment(level string) (*Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// ForEnv picks the console logger for ENV=development and JSON otherwise.
func ForEnv(env, level string) (*Logger, error) {
	if env == "development" {
		return NewDevelopment(level)
	}
	return New(level)
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named creates a child logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// ForStream scopes a logger to one SSE stream request.
func (l *Logger) ForStream(streamID, correlationID string) *Logger {
	return l.With(StreamID(streamID), zap.String("correlation_id", correlationID))
}

// ForTurn scopes a logger to one chat turn.
func (l *Logger) ForTurn(sessionID, threadID string) *Logger {
	return l.With(SessionID(sessionID), ThreadID(threadID))
}

// SessionID is the client-chosen conversation id.
func SessionID(id string) zap.Field { return zap.String("session_id", id) }

// ThreadID is the engine thread bound to a session.
func ThreadID(id string) zap.Field { return zap.String("thread_id", id) }

// StreamID is the handoff id of an SSE stream.
func StreamID(id string) zap.Field { return zap.String("stream_id", id) }

// UserID is the authenticated subject.
func UserID(id string) zap.Field { return zap.String("user_id", id) }

// Dialect is the database dialect a statement ran on.
func Dialect(d string) zap.Field { return zap.String("dialect", d) }

// SQL attaches statement text, cut to a bounded length on a rune boundary.
func SQL(sql string) zap.Field {
	if len(sql) > maxSQLFieldLen {
		cut := maxSQLFieldLen
		for cut > 0 && !utf8.RuneStart(sql[cut]) {
			cut--
		}
		sql = sql[:cut] + "..."
	}
	return zap.String("sql", sql)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global logger instance for convenience.
var global *Logger

func init() {
	global, _ = ForEnv(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	if global == nil {
		global = NewNop()
	}
}

// Global returns the global logger instance.
func Global() *Logger {
	return global
}

// SetGlobal sets the global logger instance.
func SetGlobal(l *Logger) {
	global = l
}
