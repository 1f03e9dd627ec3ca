package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level names a verbosity accepted by Init
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level Level
	// JSONOutput writes one JSON object per line instead of console text
	JSONOutput bool
	// Output defaults to stderr so stdout stays free for progress and results
	Output io.Writer
}

// Init configures the global level and replaces Logger. Unknown levels fall
// back to info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with component
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNode tags a component logger with the node it acts on
func WithNode(component, node string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("node", node).Logger()
}

// WithClient tags a node logger with the index of one dispatch client
func WithClient(component, node string, client int) zerolog.Logger {
	return Logger.With().Str("component", component).Str("node", node).Int("client", client).Logger()
}

// WithGeneration tags the worker service logger with its launch token
func WithGeneration(generation string) zerolog.Logger {
	return Logger.With().Str("component", "worker").Str("generation", generation).Logger()
}
