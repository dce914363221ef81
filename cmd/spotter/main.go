package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/influx"
	"github.com/spotterhq/spotter/internal/logging"
	intOtel "github.com/spotterhq/spotter/internal/otel"
	"github.com/spotterhq/spotter/internal/resolver"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const AppName = "spotter"

// build info, set with -ldflags
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

// app holds the process-wide services a command runs with.
type app struct {
	configDir string
	logLevel  string
	stderr    io.Writer

	sessionStart time.Time
	logs         *logging.SlogManager
	log          *slog.Logger
	logFile      *os.File
	otel         *intOtel.Provider

	// closers run in reverse order on shutdown
	closers []func() error
}

func newApp() *app {
	return &app{stderr: os.Stderr, sessionStart: time.Now()}
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// setup loads configuration and brings up logging and telemetry.
func (a *app) setup() error {
	a.logs = logging.NewSlogManager()
	a.logs.Setup(logging.Options{Output: a.stderr, Level: a.logLevel})
	a.log = a.logs.Logger()

	if a.configDir == "" {
		config.LoadDefaults()
	} else if err := config.Load(a.configDir); err != nil {
		return err
	}
	if a.logLevel != "" {
		viper.Set("logLevel", a.logLevel)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, AppName, a.sessionStart)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.log.Error("Failed to create/open log file!", "error", err, "path", logPath)
	} else {
		a.logFile = f
		a.onClose(f.Close)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var logWriter io.Writer
		if a.logFile != nil {
			logWriter = a.logFile
		}
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: BuildVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.log.Error("Failed to initialize OTel provider", "error", err)
			a.otel = nil
		} else {
			a.onClose(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return a.otel.Shutdown(ctx)
			})
		}
	}

	var extra []io.Writer
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address)
		if err != nil {
			a.log.Warn("Graylog disabled", "error", err)
		} else {
			extra = append(extra, w)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}
	var out io.Writer = a.stderr
	if a.logFile != nil {
		out = io.MultiWriter(a.stderr, a.logFile)
	}
	a.logs.Setup(logging.Options{
		Output:   out,
		Level:    viper.GetString("logLevel"),
		Ship:     extra,
		Provider: otelLogProvider,
		Attrs:    []slog.Attr{slog.String("version", BuildVersion)},
	})
	a.log = a.logs.Logger()
	a.log.Debug("Logging configured", "path", logPath, "commit", BuildCommit)
	return nil
}

// observers returns the result sinks configured besides resolution history.
func (a *app) observers(ctx context.Context) []resolver.Observer {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	backup := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("%s_influx_%s.lp.gz", AppName, a.sessionStart.Format("20060102_150405")))
	m := influx.NewManager(cfg, a.log, backup)
	if err := m.Connect(ctx); err != nil {
		a.log.Warn("Resolution metrics disabled", "error", err)
		return nil
	}
	a.onClose(m.Close)
	return []resolver.Observer{m}
}

// close releases everything setup and the command opened.
func (a *app) close() error {
	var errs []error
	if a.logs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.logs.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func main() {
	root := newRootCommand(newApp())
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
