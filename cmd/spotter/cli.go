package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/resolver"
	"github.com/spotterhq/spotter/internal/storage"
)

type runFunc func(ctx context.Context, cmd *cobra.Command, args []string) error

// run wraps a command body with setup, signal handling and shutdown.
func (a *app) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.setup(); err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return fn(ctx, cmd, args)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Resolve what a camera is pointed at",
		Version:       fmt.Sprintf("%s (%s, %s)", BuildVersion, BuildCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&a.configDir, "config", "c", "", "directory containing "+config.ConfigFileName)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newResolveCommand(a),
		newImportCommand(a),
		newHistoryCommand(a),
	)
	return root
}

func newResolveCommand(a *app) *cobra.Command {
	var (
		queryFile string
		observer  string
		pretty    bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one query read as JSON",
		Long: `Resolve reads a query ({"mode","category","metadata","tap"}) from a file
or stdin and prints the resolution result as JSON.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			q, err := readQuery(cmd.InOrStdin(), queryFile)
			if err != nil {
				return err
			}
			if observer != "" {
				pos, alt, err := geo.CoordinateFromString(observer)
				if err != nil {
					return fmt.Errorf("invalid --observer %q: %w", observer, err)
				}
				q.Metadata.Observer = pos
				q.Metadata.Altitude = alt
			}

			src, err := a.openSources(ctx)
			if err != nil {
				return err
			}
			obs := a.observers(ctx)
			if src.history != nil {
				obs = append(obs, src.history)
			}

			var meterOpt []resolver.Option
			if a.otel != nil {
				meterOpt = append(meterOpt, resolver.WithMeter(a.otel.Meter(AppName)))
			}
			engine, err := config.GetEngineConfig()
			if err != nil {
				return err
			}
			r, err := resolver.New(engine, src.source,
				append(meterOpt,
					resolver.WithLogger(a.log),
					resolver.WithObservers(obs...),
				)...)
			if err != nil {
				return err
			}

			res, err := r.Resolve(ctx, q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res, pretty)
		}),
	}
	cmd.Flags().StringVarP(&queryFile, "query", "q", "-", `query file, "-" for stdin`)
	cmd.Flags().StringVar(&observer, "observer", "", `override the capture position as "lat,lon[,alt]"`)
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <candidates.json[.gz]>",
		Short: "Load candidate objects into the configured source",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			records, err := storage.ReadFile(args[0])
			if err != nil {
				return err
			}

			src, err := a.openSources(ctx)
			if err != nil {
				return err
			}
			w, ok := src.backend.(storage.Writable)
			if !ok {
				return fmt.Errorf("source %q does not accept imports", config.GetSourceConfig().Type)
			}
			if err := w.AddCandidates(ctx, records); err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			a.log.Info("Imported candidates", "count", len(records), "file", args[0])
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d candidates\n", len(records))
			return err
		}),
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent resolutions, newest first",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			src, err := a.openSources(ctx)
			if err != nil {
				return err
			}
			if src.history == nil {
				return errors.New("history needs a sqlite or postgres source")
			}
			results, err := src.history.RecentResolutions(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range results {
				if err := writeJSON(cmd.OutOrStdout(), r, false); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of results")
	return cmd
}

func readQuery(stdin io.Reader, path string) (resolver.Query, error) {
	var q resolver.Query
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return q, fmt.Errorf("failed to open query: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&q); err != nil {
		return q, fmt.Errorf("failed to decode query: %w", err)
	}
	return q, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
