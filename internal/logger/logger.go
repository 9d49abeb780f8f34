// Package logger is the structured logging seam of fesdql. Adapters exist for
// log/slog and zap.
package logger

import (
	"log/slog"

	"go.uber.org/zap"
)

// Logger logs messages with alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a Logger that adds args to every message.
	With(args ...any) Logger
}

// NoopLogger discards everything. It is the default.
type NoopLogger struct{}

func (n *NoopLogger) Debug(string, ...any) {}
func (n *NoopLogger) Info(string, ...any)  {}
func (n *NoopLogger) Warn(string, ...any)  {}
func (n *NoopLogger) Error(string, ...any) {}

// With returns n.
func (n *NoopLogger) With(...any) Logger { return n }

// SlogAdapter logs to a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger, which must not be nil.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

// With returns an adapter over logger.With(args...).
func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// ZapAdapter logs to a *zap.Logger. Key-value pairs become loosely typed fields
// of the sugared logger.
type ZapAdapter struct {
	logger *zap.SugaredLogger
}

// NewZapAdapter wraps logger, which must not be nil.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger.Sugar()}
}

func (a *ZapAdapter) Debug(msg string, args ...any) { a.logger.Debugw(msg, args...) }
func (a *ZapAdapter) Info(msg string, args ...any)  { a.logger.Infow(msg, args...) }
func (a *ZapAdapter) Warn(msg string, args ...any)  { a.logger.Warnw(msg, args...) }
func (a *ZapAdapter) Error(msg string, args ...any) { a.logger.Errorw(msg, args...) }

// With returns an adapter whose fields include args.
func (a *ZapAdapter) With(args ...any) Logger {
	return &ZapAdapter{logger: a.logger.With(args...)}
}
