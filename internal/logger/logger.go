// Package logger builds the zap logger shared by the binaries.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing debug and info entries to stdout and warn and
// above to stderr. format is "json" or "console".
func New(level, format string) (*zap.Logger, error) {
	return newWithWriters(level, format, os.Stdout, os.Stderr)
}

// NewStderr returns a logger writing every level to stderr, for commands
// whose stdout is a result other programs parse.
func NewStderr(level, format string) (*zap.Logger, error) {
	return newWithWriters(level, format, os.Stderr, os.Stderr)
}

func newWithWriters(level, format string, stdout, stderr io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	// debug and info level enabler
	debugInfoLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= lvl && l < zapcore.WarnLevel
	})
	// warn, error and fatal level enabler
	warnErrorFatalLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= lvl && l >= zapcore.WarnLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(stdout)), debugInfoLevel),
		zapcore.NewCore(enc.Clone(), zapcore.Lock(zapcore.AddSync(stderr)), warnErrorFatalLevel),
	)
	return zap.New(core, zap.AddCaller()), nil
}
