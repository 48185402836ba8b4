package zaplogging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SprintfLogger exposes printf-style logging functions backed by zap
type SprintfLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapSprintfLogger creates a zap-backed sprintf logger writing to stderr.
// Level is one of "debug", "info", "warn", "error"; anything else means info.
func NewZapSprintfLogger(level string) *SprintfLogger {
	zapLevel := zapcore.InfoLevel
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		// Fall back to the default production logger if the config is bad
		logger = zap.Must(zap.NewProduction())
	}

	return &SprintfLogger{sugar: logger.Sugar()}
}

func (l *SprintfLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *SprintfLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *SprintfLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *SprintfLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered log entries; call before process exit
func (l *SprintfLogger) Sync() error {
	return l.sugar.Sync()
}
