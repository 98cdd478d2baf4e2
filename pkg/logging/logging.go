// Package logging builds the process zap logger.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, stdout encoding and an optional rotating log file.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string
	// Stderr sends console output to stderr, leaving stdout to the program.
	Stderr bool
}

// New builds a logger writing to stdout and, when opts.File is set, to a
// rotating JSON file as well.
func New(opts Options) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("logging: level %q: %w", opts.Level, err)
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "timestamp"
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stdout zapcore.Encoder
	switch opts.Format {
	case "", "json":
		stdout = zapcore.NewJSONEncoder(jsonCfg)
	case "console":
		stdout = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	sink := os.Stdout
	if opts.Stderr {
		sink = os.Stderr
	}
	cores := []zapcore.Core{zapcore.NewCore(stdout, zapcore.Lock(sink), level)}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(Rotator(opts.File)), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Rotator returns the lumberjack writer used for file output.
func Rotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}
