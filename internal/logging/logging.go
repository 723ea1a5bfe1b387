// Package logging builds the process-wide structured logger. Development
// environments get human-readable text on stderr; production gets JSON.
// Logs always go to stderr so stdout stays clean for the stdio MCP
// transport.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects handler format and verbosity.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// JSON selects the JSON handler; false means text.
	JSON bool
	// Output overrides the destination, for tests. Nil means stderr.
	Output io.Writer
}

// New builds a logger from the options.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
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
