package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormat is used when Config.TimeFormat is empty
const DefaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string

	// Service, Version and Env are attached to every entry when set
	Service string
	Version string
	Env     string
}

func (c *Config) staticFields() []zap.Field {
	var fields []zap.Field
	if c.Service != "" {
		fields = append(fields, zap.String("service", c.Service))
	}
	if c.Version != "" {
		fields = append(fields, zap.String("version", c.Version))
	}
	if c.Env != "" {
		fields = append(fields, zap.String("env", c.Env))
	}
	return fields
}

// New builds a zap logger from cfg. Errors carry a stack trace.
func New(cfg *Config) (*zap.Logger, error) {
	ws, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Format, cfg.TimeFormat), ws, ParseLevel(cfg.Level))
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if fields := cfg.staticFields(); len(fields) > 0 {
		opts = append(opts, zap.Fields(fields...))
	}
	return zap.New(core, opts...), nil
}

// ParseLevel converts a level name to zapcore.Level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
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

func newEncoder(format, timeFormat string) zapcore.Encoder {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func openOutput(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log output %s: %w", output, err)
	}
	return zapcore.AddSync(f), nil
}

// Sync flushes buffered entries, ignoring the EINVAL and ENOTTY returned
// when stdout is a terminal.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
