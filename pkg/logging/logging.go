// Package logging provides the structured logger shared by every component
// of the execution core, following the convention trpc-agent-go uses: a
// package-level zap logger wired to stdout, overridable by callers who want
// their own sink.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "lvl",
	NameKey:        "name",
	CallerKey:      "caller",
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Default is the logger used by every package in this module unless a
// caller installs a different one via SetDefault.
var Default = zap.New(
	zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	zap.AddCaller(),
)

// SetDefault replaces the shared logger, e.g. to redirect into a test
// observer or a host application's own zap core.
func SetDefault(l *zap.Logger) {
	Default = l
}

// SetLevel adjusts the shared logger's minimum level.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Named returns the shared logger scoped under the given component name.
func Named(name string) *zap.Logger {
	return Default.Named(name)
}
