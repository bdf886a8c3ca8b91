package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for per-bot log files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// SlogConfig controls the manager's own structured logging output.
type SlogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`   // debug|info|warn|error
	Format string `mapstructure:"format" toml:"format"` // text|json
	Color  bool   `mapstructure:"color" toml:"color"`   // ANSI colors for text format
}

// FileConfig describes rotated stdout/stderr destinations for bot processes.
// If StdoutPath/StderrPath are empty and Dir is set, files are derived as
// Dir/<bot>.stdout.log and Dir/<bot>.stderr.log. Rotation parameters follow
// lumberjack semantics.
type FileConfig struct {
	Dir        string `mapstructure:"dir" toml:"dir"`                 // base directory for bot logs
	StdoutPath string `mapstructure:"stdout_path" toml:"stdout_path"` // explicit stdout path overrides Dir
	StderrPath string `mapstructure:"stderr_path" toml:"stderr_path"` // explicit stderr path overrides Dir
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" toml:"compress"` // gzip rotated files
}

// Config bundles the manager's structured logging and the bot process
// file logging settings.
type Config struct {
	Slog SlogConfig `mapstructure:"slog" toml:"slog"`
	File FileConfig `mapstructure:"file" toml:"file"`
}

// NewSlogger builds a slog.Logger from the Slog section. Text format with
// Color enabled uses the ANSI handler; otherwise plain text or JSON.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Slog.Level)}
	var h slog.Handler
	switch strings.ToLower(c.Slog.Format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		if c.Slog.Color {
			h = NewColorTextHandler(os.Stderr, opts, true)
		} else {
			h = slog.NewTextHandler(os.Stderr, opts)
		}
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProcessWriters returns io.WriteClosers for a bot's stdout and stderr.
// Either writer may be nil when no destination is configured for it.
func (c Config) ProcessWriters(bot string) (io.WriteCloser, io.WriteCloser, error) {
	f := c.File
	stdout := f.StdoutPath
	stderr := f.StderrPath
	if stdout == "" && f.Dir != "" {
		stdout = filepath.Join(f.Dir, fmt.Sprintf("%s.stdout.log", bot))
	}
	if stderr == "" && f.Dir != "" {
		stderr = filepath.Join(f.Dir, fmt.Sprintf("%s.stderr.log", bot))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = f.rotated(stdout)
	}
	if stderr != "" {
		errW = f.rotated(stderr)
	}
	return outW, errW, nil
}

func (f FileConfig) rotated(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
