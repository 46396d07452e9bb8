package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables read by the loader.
// LSPSYNC_SERVER_COMMAND sets server.command.
const EnvPrefix = "LSPSYNC"

// Config is the complete configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Editor EditorConfig `mapstructure:"editor"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig describes the language server and how its session behaves.
type ServerConfig struct {
	Command             string            `mapstructure:"command"`
	Args                []string          `mapstructure:"args"`
	Env                 map[string]string `mapstructure:"env"`
	LanguageID          string            `mapstructure:"language_id"`
	KeepAlive           bool              `mapstructure:"keep_alive"`
	MaxRestarts         int               `mapstructure:"max_restarts"`
	WaitForRegistration bool              `mapstructure:"wait_for_registration"`
	ShutdownTimeout     time.Duration     `mapstructure:"shutdown_timeout"`
}

// EditorConfig holds editing behaviour.
type EditorConfig struct {
	// UndoLimit is the maximum number of undo entries per document.
	UndoLimit int `mapstructure:"undo_limit"`
	// CompletionMinPrefix is how many characters of a word must be typed
	// before completion is requested.
	CompletionMinPrefix int `mapstructure:"completion_min_prefix"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ZapLevel returns the configured level, or info if it does not parse.
func (c LogConfig) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Command:             "rust-analyzer",
			Args:                []string{},
			Env:                 map[string]string{},
			LanguageID:          "rust",
			KeepAlive:           true,
			MaxRestarts:         5,
			WaitForRegistration: true,
			ShutdownTimeout:     5 * time.Second,
		},
		Editor: EditorConfig{
			UndoLimit:           1000,
			CompletionMinPrefix: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.command", d.Server.Command)
	v.SetDefault("server.args", d.Server.Args)
	v.SetDefault("server.env", d.Server.Env)
	v.SetDefault("server.language_id", d.Server.LanguageID)
	v.SetDefault("server.keep_alive", d.Server.KeepAlive)
	v.SetDefault("server.max_restarts", d.Server.MaxRestarts)
	v.SetDefault("server.wait_for_registration", d.Server.WaitForRegistration)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("editor.undo_limit", d.Editor.UndoLimit)
	v.SetDefault("editor.completion_min_prefix", d.Editor.CompletionMinPrefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"server":                "server.command",
	"server-arg":            "server.args",
	"language-id":           "server.language_id",
	"keep-alive":            "server.keep_alive",
	"max-restarts":          "server.max_restarts",
	"wait-for-registration": "server.wait_for_registration",
	"shutdown-timeout":      "server.shutdown_timeout",
	"undo-limit":            "editor.undo_limit",
	"log-level":             "log.level",
	"log-format":            "log.format",
	"log-file":              "log.file",
}

// RegisterFlags defines the command line flags understood by BindFlags.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("server", d.Server.Command, "language server executable")
	fs.StringSlice("server-arg", nil, "argument passed to the language server (repeatable)")
	fs.String("language-id", d.Server.LanguageID, "languageId sent when opening documents")
	fs.Bool("keep-alive", d.Server.KeepAlive, "restart the server after a crash")
	fs.Int("max-restarts", d.Server.MaxRestarts, "restarts before giving up on the server")
	fs.Bool("wait-for-registration", d.Server.WaitForRegistration, "wait for client/registerCapability before editing")
	fs.Duration("shutdown-timeout", d.Server.ShutdownTimeout, "time allowed for the server to exit")
	fs.Int("undo-limit", d.Editor.UndoLimit, "maximum undo entries per document")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: console or json")
	fs.String("log-file", d.Log.File, "write logs to this file instead of stderr")
}

// Loader builds a Config from defaults, a file, the environment and flags.
// Each Load starts from scratch, so reloading a file drops keys that were
// removed from it.
type Loader struct {
	flags *pflag.FlagSet
}

// NewLoader creates a loader.
func NewLoader() *Loader {
	return &Loader{}
}

// BindFlags makes flags registered with RegisterFlags the highest layer.
// Only flags set on the command line override other layers.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name := range flagKeys {
		if fs.Lookup(name) == nil {
			return errors.Newf("flag %q is not registered", name)
		}
	}
	l.flags = fs
	return nil
}

// Load reads path, which may be empty or missing, and returns the merged,
// validated configuration.
func (l *Loader) Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.flags != nil {
		for name, key := range flagKeys {
			if err := v.BindPFlag(key, l.flags.Lookup(name)); err != nil {
				return nil, errors.Wrapf(err, "binding flag %s", name)
			}
		}
	}

	var env map[string]string
	if path != "" {
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if m != nil {
			// viper lower-cases map keys in place. Environment variable
			// names are case sensitive, so copy them out first.
			env = serverEnv(m)
			if err := v.MergeConfigMap(m); err != nil {
				return nil, errors.Wrapf(err, "merging %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if env != nil {
		cfg.Server.Env = env
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func serverEnv(file map[string]any) map[string]string {
	server, ok := file["server"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := server["env"].(map[string]any)
	if !ok {
		return nil
	}
	env := make(map[string]string, len(raw))
	for k, v := range raw {
		env[k] = fmt.Sprint(v)
	}
	return env
}

// Validate checks every setting against its domain and returns the first
// violation.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.Command) == "":
		return &ValidationError{Key: "server.command", Value: c.Server.Command, Message: "must not be empty"}
	case c.Server.LanguageID == "":
		return &ValidationError{Key: "server.language_id", Value: c.Server.LanguageID, Message: "must not be empty"}
	case c.Server.MaxRestarts < 0:
		return &ValidationError{Key: "server.max_restarts", Value: c.Server.MaxRestarts, Message: "must not be negative"}
	case c.Server.ShutdownTimeout <= 0:
		return &ValidationError{Key: "server.shutdown_timeout", Value: c.Server.ShutdownTimeout, Message: "must be positive"}
	case c.Editor.UndoLimit <= 0:
		return &ValidationError{Key: "editor.undo_limit", Value: c.Editor.UndoLimit, Message: "must be positive"}
	case c.Editor.CompletionMinPrefix < 1:
		return &ValidationError{Key: "editor.completion_min_prefix", Value: c.Editor.CompletionMinPrefix, Message: "must be at least 1"}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Key: "log.level", Value: c.Log.Level, Message: "must be debug, info, warn or error"}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return &ValidationError{Key: "log.format", Value: c.Log.Format, Message: "must be console or json"}
	}
	return nil
}
