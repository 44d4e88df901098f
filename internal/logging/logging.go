package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string // "json", "console", or "auto"
	Level     string // "debug", "info", "warn", "error"
	Component string // optional component name
}

var isTerminalFn = term.IsTerminal

// Init builds the process logger writing to stderr and installs it as the
// zerolog global logger.
func Init(cfg Config) zerolog.Logger {
	logger := New(cfg, selectWriter(cfg.Format, os.Stderr))
	log.Logger = logger
	return logger
}

// New builds a logger writing to out. Console formatting is applied when
// cfg.Format asks for it.
func New(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		out = newConsoleWriter(out)
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if component := strings.TrimSpace(cfg.Component); component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger()
}

func parseLevel(level string) zerolog.Level {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "", "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid level %q; using %q\n", normalized, "info")
		return zerolog.InfoLevel
	}
}

func selectWriter(format string, stderr *os.File) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		// New wraps it.
		return stderr
	case "json":
		return stderr
	case "auto", "":
		if isTerminalFn(int(stderr.Fd())) {
			return newConsoleWriter(stderr)
		}
		return stderr
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid format %q; using %q\n", format, "json")
		return stderr
	}
}

func newConsoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}
