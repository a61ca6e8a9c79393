// File: internal/xlog/setup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Root zap logger with a console encoder and optional rotating file output.

package xlog

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	levelController = zap.NewAtomicLevelAt(zap.InfoLevel)

	mu     sync.Mutex
	root   *zap.Logger
	closer io.Closer
)

// Options configures Setup.
type Options struct {
	// File enables rotating file output instead of stderr.
	File string
	// Level is a zap level name; empty keeps the current level.
	Level string
	// MaxSizeMB and MaxBackups bound the rotated files.
	MaxSizeMB  int
	MaxBackups int
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		CallerKey:     "line",
		LevelKey:      "level",
		MessageKey:    "message",
		NameKey:       "logger",
		TimeKey:       "time",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05.999"))
		},
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToTitle(level.String()))
		},
		EncodeCaller: func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + caller.TrimmedPath() + "]")
		},
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
}

// Setup replaces the root logger.
func Setup(opts Options) (*zap.Logger, error) {
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		levelController.SetLevel(lvl)
	}

	var (
		sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		c    io.Closer
	)
	if opts.File != "" {
		w := fileWriter(opts)
		sink = zapcore.AddSync(w)
		c = w
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), sink, levelController)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	prev := closer
	root, closer = logger, c
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return logger, nil
}

// L returns the root logger, creating the default stderr one on first use.
func L() *zap.Logger {
	mu.Lock()
	l := root
	mu.Unlock()
	if l != nil {
		return l
	}
	l, _ = Setup(Options{})
	return l
}

// Named returns a child of the root logger.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// SetLevel changes the level of every logger built by Setup.
func SetLevel(l zapcore.Level) {
	levelController.SetLevel(l)
}

// Close flushes the root logger and closes the log file, if any.
func Close() error {
	mu.Lock()
	l, c := root, closer
	root, closer = nil, nil
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
	if c != nil {
		return c.Close()
	}
	return nil
}

func fileWriter(opts Options) *timberjack.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = 7
	}
	return &timberjack.Logger{
		Filename:         opts.File,
		MaxBackups:       backups,
		MaxSize:          maxSize,
		MaxAge:           7,
		Compression:      "none",
		LocalTime:        true,
		RotationInterval: 24 * time.Hour,
		BackupTimeFormat: "2006-01-02-15-04-05",
	}
}
