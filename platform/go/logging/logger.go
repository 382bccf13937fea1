package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the component label, threshold and sink of a process logger.
type Config struct {
	// Component is attached to every entry, e.g. "api" or "cli".
	Component string
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Output receives the JSON entries; nil means stdout.
	Output io.Writer
}

// NewLogger builds a JSON zap logger whose field names match what Cloud
// Logging parses from container stdout.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	sink := cfg.Output
	if sink == nil {
		sink = os.Stdout
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(sink), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if cfg.Component != "" {
		logger = logger.With(zap.String("component", cfg.Component))
	}
	return logger, nil
}

func parseLevel(raw string) (zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return level, fmt.Errorf("log level %q: %w", raw, err)
	}
	return level, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    severity,
	}
}

// severity maps zap levels onto the LogSeverity names.
func severity(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		enc.AppendString("ALERT")
	case zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString(l.CapitalString())
	}
}
