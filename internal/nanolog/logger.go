// Package nanolog builds the structured, leveled logger every subsystem
// accepts via its SetLogger(*zap.Logger) hook. It replaces the teacher's
// hand-rolled log15 fork (log.Info("msg", "k", v, ...)) with
// go.uber.org/zap, keeping the same key/value call shape, and adds file
// rotation via gopkg.in/natefinch/lumberjack.v2 since a long-running node
// cannot log to an ever-growing file.
package nanolog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go and how verbose they are.
type Config struct {
	// Level is one of "trace", "debug", "info", "warn", "error", "crit".
	// Empty defaults to "info". "trace" maps to zap's DebugLevel - zap
	// has no level below Debug.
	Level string

	// FilePath, if non-empty, is rotated with lumberjack. Empty means
	// file output is disabled.
	FilePath string

	// MaxSizeMB is the size in megabytes a log file is allowed to reach
	// before it gets rotated. Zero defaults to 100.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep. Zero means
	// keep all of them.
	MaxBackups int

	// MaxAgeDays is the number of days to retain old log files. Zero
	// means no age-based cleanup.
	MaxAgeDays int

	// Compress rotated files with gzip.
	Compress bool

	// Console, if true, also writes to stderr in a human-readable
	// format. Useful alongside FilePath, or alone during development.
	Console bool
}

// DefaultConfig is the config cmd/nanogod falls back to when none is
// given on the command line: info level, console only.
func DefaultConfig() Config {
	return Config{Level: "info", Console: true}
}

func level(s string) zapcore.Level {
	switch s {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "crit":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a logger from cfg. At least one of cfg.FilePath or
// cfg.Console must produce output, or the returned logger discards
// everything.
func New(cfg Config) (*zap.Logger, error) {
	lvl := level(cfg.Level)

	var cores []zapcore.Core
	if cfg.Console {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(zapcore.AddSync(os.Stderr)),
			lvl,
		))
	}
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.TimeKey = "ts"
		jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(jsonCfg),
			zapcore.AddSync(rotator),
			lvl,
		))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

// Named returns base scoped under name, the idiomatic substitute for the
// teacher's per-package "module" context key (e.g. log.New("module",
// "blockchain")) — every subsystem logs under its own name without each
// caller repeating a tag.
func Named(base *zap.Logger, name string) *zap.Logger {
	return base.Named(name)
}

