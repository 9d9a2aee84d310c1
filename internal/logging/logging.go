// Package logging builds the zap loggers used by the CLI and connectors.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RFC3339Milli is the timestamp layout of every log line.
const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// Format selects the line encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures New.
type Options struct {
	Debug  bool
	Format Format
	// File, when set, receives a copy of every line through a rotating
	// writer. Stderr output is kept.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Output replaces stderr. Used by tests.
	Output io.Writer
}

// New builds a logger from opts. Info is the lowest level unless Debug is set.
func New(opts Options) (*zap.Logger, error) {
	encoder, err := newEncoder(opts.Format)
	if err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(out), level)}

	if opts.File != "" {
		lf := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(lf), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Must is New for callers that cannot continue without a logger.
func Must(opts Options) *zap.Logger {
	logger, err := New(opts)
	if err != nil {
		panic(err)
	}
	return logger
}

func newEncoder(format Format) (zapcore.Encoder, error) {
	cfg := encoderConfig()
	switch Format(strings.ToLower(string(format))) {
	case "", FormatConsole:
		return zapcore.NewConsoleEncoder(cfg), nil
	case FormatJSON:
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q: use \"console\" or \"json\"", format)
	}
}

func encoderConfig() zapcore.EncoderConfig {
	timeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(RFC3339Milli))
	}

	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
