// Package xlog configures the structured logger shared by every
// reactor, socket and server in the core. Components never call
// log/fmt directly; they log through a *zap.Logger obtained here.
package xlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config tunes the process-wide logger. Zero value yields a JSON
// logger at Info level writing to stderr.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Empty = "info".
	Level string
	// FilePath, when set, routes output through a rotating file writer
	// instead of stderr.
	FilePath   string
	MaxSizeMB  int // default 100
	MaxBackups int // default 3
	MaxAgeDays int // default 28
	// Development enables human-readable console encoding; otherwise
	// JSON encoding is used, suited for log aggregation.
	Development bool
}

var (
	base     *zap.Logger
	baseOnce sync.Once
)

// Base returns the process-wide base logger, building it from the
// zero Config on first use. Call Configure before any reactor starts
// if non-default settings are desired.
func Base() *zap.Logger {
	baseOnce.Do(func() {
		if base == nil {
			base = build(Config{})
		}
	})
	return base
}

// Configure installs cfg as the process-wide base logger. Must be
// called before the first call to Base() to take effect; subsequent
// calls are ignored once Base() has latched.
func Configure(cfg Config) {
	baseOnce.Do(func() {
		base = build(cfg)
	})
}

func build(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Development {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.FilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    firstNonZero(cfg.MaxSizeMB, 100),
			MaxBackups: firstNonZero(cfg.MaxBackups, 3),
			MaxAge:     firstNonZero(cfg.MaxAgeDays, 28),
		})
	} else {
		sink = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller())
}

func firstNonZero(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Reactor returns a logger scoped to a single reactor instance, the
// way each Poller tags every event it logs with its own id.
func Reactor(id int) *zap.Logger {
	return Base().With(zap.Int("reactor", id))
}

// Socket returns a logger scoped to a single file descriptor.
func Socket(fd int) *zap.Logger {
	return Base().With(zap.Int("fd", fd))
}

// Session returns a logger scoped to a session identity tag.
func Session(tag string) *zap.Logger {
	return Base().With(zap.String("session", tag))
}
