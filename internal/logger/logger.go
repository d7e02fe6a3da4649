// Package logger holds the process-default structured logger, a single
// hclog.Logger every other package pulls from rather than constructing
// its own, so one LoggingConfig controls output format/level everywhere.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/internal/config"
)

var (
	mu      sync.Mutex
	current hclog.Logger = hclog.NewNullLogger()
)

// Init builds the process-default logger from cfg, replacing whatever
// was installed before. Call once at startup, before any other package
// calls Get/Named.
func Init(cfg config.LoggingConfig) error {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	} else if cfg.Output != "" && cfg.Output != "stdout" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		out = f
	}

	current = hclog.New(&hclog.LoggerOptions{
		Name:            "tlplay",
		Level:           hclog.LevelFromString(cfg.Level),
		Output:          out,
		JSONFormat:      cfg.Format == "json",
		Color:           colorOption(cfg.EnableColors),
		IncludeLocation: cfg.Level == "debug" || cfg.Level == "trace",
	})
	return nil
}

func colorOption(enabled bool) hclog.ColorOption {
	if enabled {
		return hclog.AutoColor
	}
	return hclog.ColorOff
}

// Get returns the process-default logger.
func Get() hclog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Named returns a sub-logger of the process default, the usual way
// individual components (the reader registry, the request queue, a
// hosted plugin) get their own log prefix without owning construction.
func Named(name string) hclog.Logger {
	return Get().Named(name)
}

// The package-level Info/Warn/Error/Debug helpers below exist for call
// sites that log one-off messages without a component name of their
// own (cmd/tlplay's startup sequence, for example).

func Info(msg string, args ...interface{})  { Get().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Get().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Get().Error(msg, args...) }
func Debug(msg string, args ...interface{}) { Get().Debug(msg, args...) }
