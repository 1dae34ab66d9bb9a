// Package corelog provides a leveled logger for hosts embedding mdljarm; no
// other mdljarm package logs through it. It wraps logr with a zap backend
// the way a host application typically wires up logging for a library it
// embeds.
package corelog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is a thin, embeddable wrapper around logr.Logger with leveled
// convenience methods matching the rest of the codebase's call sites.
type Log struct {
	logr.Logger
}

// New builds a logger backed by zap, in either production (JSON) or
// development (colorized console) mode.
func New(name string, production bool) (*Log, error) {
	var zc zap.Config
	switch production {
	case true:
		zc = zap.NewProductionConfig()
	case false:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.DisableCaller = true
	zc.DisableStacktrace = true

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return &Log{Logger: zapr.NewLogger(z).WithName(name)}, nil
}

// Noop returns a logger that discards everything, used as the default when
// a caller does not supply one.
func Noop() *Log {
	return &Log{Logger: logr.Discard()}
}

// New creates a named sub-logger of the receiver.
func (l *Log) New(name string) *Log {
	return &Log{Logger: l.WithName(name)}
}

// Info logs at V(0).
func (l *Log) Info(msg string, args ...interface{}) {
	l.Logger.V(0).WithValues(args...).Info(msg)
}

// Debug logs at V(1).
func (l *Log) Debug(msg string, args ...interface{}) {
	l.Logger.V(1).WithValues(args...).Info(msg)
}

// Trace logs at V(2).
func (l *Log) Trace(msg string, args ...interface{}) {
	l.Logger.V(2).WithValues(args...).Info(msg)
}
