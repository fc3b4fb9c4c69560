// Package logging configures the process-wide zerolog logger.
//
// Information Hiding:
// - Writer selection (stdout, stderr, file) and console formatting
// - Global level handling
// - Component loggers share the root logger's sinks

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level, format and destination.
type Config struct {
	Level    string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format   string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	Output   string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr file"`
	FilePath string `mapstructure:"file_path"`

	// Writer, when set, replaces Output.
	Writer io.Writer `mapstructure:"-" json:"-"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Init builds the root logger and installs it as log.Logger.
func Init(cfg Config) error {
	levelName := cfg.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Writer
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			output = os.Stdout
		case "file":
			if cfg.FilePath == "" {
				return fmt.Errorf("log output 'file' requires a file path")
			}
			if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
			file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file '%s': %w", cfg.FilePath, err)
			}
			output = file
		default:
			output = os.Stderr
		}
	}

	if strings.ToLower(cfg.Format) != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.Writer != nil,
		}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	return nil
}

// Component returns a child of the root logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
