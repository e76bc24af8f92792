package logger

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements the ports.Logger interface on top of zap.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a JSON production logger writing to stdout at the given level.
func NewZapLogger(level LogLevel) (*ZapLogger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(level.zapLevel())
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: zapLogger}, nil
}

// NewFromZap wraps an existing zap logger, e.g. one built on an observer core in tests.
func NewFromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: l}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ZapLogger) log(level zapcore.Level, msg string, err error, fields ...map[string]interface{}) {
	ce := l.logger.Check(level, msg)
	if ce == nil {
		return
	}

	var zf []zap.Field
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	if len(fields) > 0 && fields[0] != nil {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zf = append(zf, zap.Any(k, fields[0][k]))
		}
	}
	ce.Write(zf...)
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.DebugLevel, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.InfoLevel, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.WarnLevel, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.ErrorLevel, msg, err, fields...)
}
