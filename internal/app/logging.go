package app

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/lspsync/internal/config"
)

// ParseLogLevel parses a level name. Unknown names map to info.
func ParseLogLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggerConfig configures the root logger.
type LoggerConfig struct {
	// Level is the minimum level written.
	Level zapcore.Level
	// Format is "console" or "json".
	Format string
	// File receives the logs when set. Output defaults to os.Stderr.
	File   string
	Output io.Writer
}

// DefaultLoggerConfig returns the default logger configuration.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:  zapcore.InfoLevel,
		Format: "console",
		Output: os.Stderr,
	}
}

// LoggerConfigFrom converts the log section of the configuration.
func LoggerConfigFrom(c config.LogConfig) LoggerConfig {
	cfg := DefaultLoggerConfig()
	cfg.Level = ParseLogLevel(c.Level)
	if c.Format != "" {
		cfg.Format = c.Format
	}
	cfg.File = c.File
	return cfg
}

// Logging is the root logger together with the handle that changes its
// level at runtime.
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel

	file *os.File
}

// NewLogging builds the root logger.
func NewLogging(cfg LoggerConfig) (*Logging, error) {
	level := zap.NewAtomicLevelAt(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, errors.Newf("unknown log format %q", cfg.Format)
	}

	l := &Logging{Level: level}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening log file %s", cfg.File)
		}
		l.file = f
		out = f
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)
	l.Logger = zap.New(core, zap.AddCaller()).Named("lspsync")
	return l, nil
}

// SetLevel changes the level of every logger derived from the root.
func (l *Logging) SetLevel(level zapcore.Level) {
	if l.Level.Level() == level {
		return
	}
	l.Logger.Info("log level changed", zap.Stringer("from", l.Level.Level()), zap.Stringer("to", level))
	l.Level.SetLevel(level)
}

// Close flushes the logger and closes the log file, if any.
func (l *Logging) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
