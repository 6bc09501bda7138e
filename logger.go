package apireq

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger receives debug output. keyvals alternate between keys and values.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// DebugConfig selects which parts of the call path are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogRetries   bool
	LogSingle    bool
	LogGuard     bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled configuration with every category
// selected, so enabling it logs everything.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogRequests:  true,
		LogCache:     true,
		LogRetries:   true,
		LogSingle:    true,
		LogGuard:     true,
		RequestIDGen: uuid.NewString,
	}
}

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger adapts a zerolog logger.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

// NewSimpleLogger writes human readable lines to stderr.
func NewSimpleLogger() Logger {
	return NewZerologLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("component", "apireq").Logger())
}

func (l *zerologLogger) Debug(msg string, keyvals ...any) {
	l.zl.Debug().Fields(keyvals).Msg(msg)
}

func (l *zerologLogger) Info(msg string, keyvals ...any) {
	l.zl.Info().Fields(keyvals).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, keyvals ...any) {
	l.zl.Warn().Fields(keyvals).Msg(msg)
}

func (l *zerologLogger) Error(msg string, keyvals ...any) {
	l.zl.Error().Fields(keyvals).Msg(msg)
}

// observer bundles the logging and metrics sinks shared by the controllers.
type observer struct {
	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector
}

func (o *observer) logs(category bool) bool {
	return o != nil && o.logger != nil && o.debug != nil && o.debug.Enabled && category
}

func (o *observer) requestID() string {
	if o == nil || o.debug == nil || !o.debug.Enabled || o.debug.RequestIDGen == nil {
		return ""
	}
	return o.debug.RequestIDGen()
}
