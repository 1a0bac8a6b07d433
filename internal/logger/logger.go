// Package logger provides zerolog loggers tagged with the module that emits
// each event.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultLevel keeps the guard quiet unless asked.
const DefaultLevel = "warn"

// Logging is the logger configuration.
type Logging struct {
	Level  string
	Format string

	// Writer defaults to stderr. Stdout carries command output.
	Writer io.Writer
}

// Logger is a zerolog logger bound to a module.
type Logger struct {
	*zerolog.Logger
	module string
	base   zerolog.Logger // without the module field
}

// Module returns the logger's module name.
func (l *Logger) Module() string {
	return l.module
}

// Named derives a logger for a sub-module, e.g. BIFROST.POLICY.
func (l *Logger) Named(name ...string) *Logger {
	parts := make([]string, 0, len(name)+1)
	if l.module != rootName {
		parts = append(parts, l.module)
	}
	for _, n := range name {
		parts = append(parts, strings.ToUpper(n))
	}
	module := strings.Join(parts, ".")
	sub := l.base.With().Str("module", module).Logger()
	return &Logger{Logger: &sub, module: module, base: l.base}
}

const rootName = "ROOT"

var root struct {
	sync.Mutex
	l *Logger
}

// Init replaces the root logger. Loggers obtained earlier keep their old
// configuration.
func Init(cfg Logging) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	root.Lock()
	root.l = l
	root.Unlock()
	return nil
}

// GetLogger returns a logger for the given module path. With no scope it
// returns the root logger.
func GetLogger(scope ...string) *Logger {
	root.Lock()
	if root.l == nil {
		l, err := newLogger(Logging{})
		if err != nil {
			panic(err)
		}
		root.l = l
	}
	l := root.l
	root.Unlock()

	if len(scope) == 0 {
		return l
	}
	return l.Named(scope...)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{Logger: &l, module: rootName, base: l}
}

func newLogger(cfg Logging) (*Logger, error) {
	level := cfg.Level
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	switch cfg.Format {
	case "", FormatText:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("invalid log format %q (want %s or %s)", cfg.Format, FormatText, FormatJSON)
	}

	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{Logger: &l, module: rootName, base: l}, nil
}
