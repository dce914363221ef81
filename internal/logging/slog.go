package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapped in tests
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// bridgeName is the instrumentation scope of records sent through OTel.
const bridgeName = "github.com/spotterhq/spotter"

// Options configures SlogManager.Setup.
type Options struct {
	// Output receives human-readable records. Stdout when nil.
	Output io.Writer
	// JSON writes Output as JSON instead of text.
	JSON  bool
	Level string
	// Ship receives JSON records, e.g. a Graylog writer. Nil entries are skipped.
	Ship []io.Writer
	// Provider enables the OTel log bridge.
	Provider *sdklog.LoggerProvider
	// Attrs are attached to every record.
	Attrs []slog.Attr
}

// SlogManager owns the process logger. The level can be changed after Setup
// without rebuilding handlers.
type SlogManager struct {
	logger      *slog.Logger
	level       slog.LevelVar
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a manager logging at info until Setup is called.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel accepts the slog level names in any case, with optional
// offsets such as "debug+2". Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// utcTime renders record times as RFC 3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup replaces the logger. An unparseable level falls back to info and is
// reported through the new logger.
func (m *SlogManager) Setup(opts Options) {
	lvl, levelErr := ParseLevel(opts.Level)
	m.level.Set(lvl)
	m.logProvider = opts.Provider

	handlerOpts := &slog.HandlerOptions{Level: &m.level, ReplaceAttr: utcTime}

	out := opts.Output
	if out == nil {
		out = osStdout
	}
	var handlers []slog.Handler
	if opts.JSON {
		handlers = append(handlers, slog.NewJSONHandler(out, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(out, handlerOpts))
	}
	for _, w := range opts.Ship {
		if w != nil {
			handlers = append(handlers, slog.NewJSONHandler(w, handlerOpts))
		}
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(bridgeName, otelslog.WithLoggerProvider(opts.Provider)))
	}

	var h slog.Handler = NewContextHandler(NewMultiHandler(handlers...))
	if len(opts.Attrs) > 0 {
		h = h.WithAttrs(opts.Attrs)
	}
	m.logger = slog.New(h)

	if levelErr != nil {
		m.logger.Warn("Using info log level", "error", levelErr)
	}
	m.logger.Debug("Logging initialized", "level", lvl, "sinks", len(handlers))
}

// SetLevel changes the level of the current logger in place.
func (m *SlogManager) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	m.level.Set(lvl)
	return nil
}

// Level returns the active level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records to their exporters.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
