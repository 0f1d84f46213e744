// Package log is the relay's structured logging facade over zap.
// Every component takes a Logger so tests can swap in a no-op or mock.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global Logger = mustZapLogger(false, zapcore.InfoLevel, nil)

// SetLogger replaces the global logger instance.
func SetLogger(l Logger) {
	global = l
}

// GetLogger returns the current global logger instance.
func GetLogger() Logger {
	return global
}

// Logger defines the relay logging interface.
type Logger interface {
	Info(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Debug(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

// Configure sets up the global logger based on env and level.
// Any files given are appended to the output paths next to stderr, so a
// deployment can keep a persistent log without a sidecar.
func Configure(env, level string, files ...string) error {
	isDev := env != "prod"

	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	l, err := newZapLogger(isDev, lvl, files)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	global = l
	return nil
}

// Info logs at info level using the global logger.
func Info(fields map[string]any, msg string) {
	global.Info(fields, msg)
}

// Error logs at error level using the global logger.
func Error(fields map[string]any, msg string) {
	global.Error(fields, msg)
}

// Debug logs at debug level using the global logger.
func Debug(fields map[string]any, msg string) {
	global.Debug(fields, msg)
}

// Warn logs at warn level using the global logger.
func Warn(fields map[string]any, msg string) {
	global.Warn(fields, msg)
}

// Panic logs at panic level using the global logger.
func Panic(fields map[string]any, msg string) {
	global.Panic(fields, msg)
}

// Fatal logs at fatal level using the global logger.
func Fatal(fields map[string]any, msg string) {
	global.Fatal(fields, msg)
}

// zapLogger implements Logger using Uber's zap.
type zapLogger struct {
	base *zap.Logger
}

func newZapLogger(dev bool, level zapcore.Level, files []string) (Logger, error) {
	var config zap.Config
	if dev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.LevelKey = "level"
	for _, f := range files {
		if f = strings.TrimSpace(f); f != "" {
			config.OutputPaths = append(config.OutputPaths, f)
		}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{base: logger}, nil
}

// mustZapLogger is only used for the package default, whose config cannot fail.
func mustZapLogger(dev bool, level zapcore.Level, files []string) Logger {
	l, err := newZapLogger(dev, level, files)
	if err != nil {
		return &zapLogger{base: zap.NewNop()}
	}
	return l
}

func (l *zapLogger) Info(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Info(msg)
}

func (l *zapLogger) Error(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Error(msg)
}

func (l *zapLogger) Debug(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Debug(msg)
}

func (l *zapLogger) Warn(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Warn(msg)
}

func (l *zapLogger) Panic(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Panic(msg)
}

func (l *zapLogger) Fatal(fields map[string]any, msg string) {
	l.base.With(zapFields(fields)...).Fatal(msg)
}

func zapFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

type noopLogger struct{}

func (n *noopLogger) Info(map[string]any, string)  {}
func (n *noopLogger) Error(map[string]any, string) {}
func (n *noopLogger) Debug(map[string]any, string) {}
func (n *noopLogger) Warn(map[string]any, string)  {}
func (n *noopLogger) Panic(map[string]any, string) {}
func (n *noopLogger) Fatal(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards all log messages.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

// WithComponent returns a Logger that adds component=name to every entry.
// Fields passed at the call site win over the component tag.
func WithComponent(l Logger, name string) Logger {
	if l == nil {
		l = NewNoopLogger()
	}
	return &componentLogger{base: l, name: name}
}

type componentLogger struct {
	base Logger
	name string
}

func (c *componentLogger) tag(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	out["component"] = c.name
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (c *componentLogger) Info(fields map[string]any, msg string)  { c.base.Info(c.tag(fields), msg) }
func (c *componentLogger) Error(fields map[string]any, msg string) { c.base.Error(c.tag(fields), msg) }
func (c *componentLogger) Debug(fields map[string]any, msg string) { c.base.Debug(c.tag(fields), msg) }
func (c *componentLogger) Warn(fields map[string]any, msg string)  { c.base.Warn(c.tag(fields), msg) }
func (c *componentLogger) Panic(fields map[string]any, msg string) { c.base.Panic(c.tag(fields), msg) }
func (c *componentLogger) Fatal(fields map[string]any, msg string) { c.base.Fatal(c.tag(fields), msg) }
