package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/schemasync/internal/config"
	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/formatter"
	"github.com/kyleking/schemasync/internal/logging"
	"github.com/kyleking/schemasync/internal/manifest"
	"github.com/kyleking/schemasync/internal/metrics"
	"github.com/kyleking/schemasync/internal/schema"
	"github.com/kyleking/schemasync/internal/storage"
)

// app holds what every command needs once flags and config are resolved
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Collector
	out     io.Writer
	format  formatter.OutputFormat

	manifest *manifest.Manifest
}

// newApp loads configuration with the command's flag overrides
func newApp(cmd *cli.Command) (*app, error) {
	root := cmd.Root()

	cfg, err := config.LoadConfigWithOverrides(flagOverrides(root))
	if err != nil {
		return nil, err
	}

	cfg.ExpandAllPaths()

	out := root.Writer
	if out == nil {
		out = os.Stdout
	}

	return newAppWithConfig(cfg, out, root.String("format"))
}

func newAppWithConfig(cfg *config.Config, out io.Writer, format string) (*app, error) {
	outputFormat, err := formatter.ParseOutputFormat(format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "invalid --format")
	}

	logCfg := cfg.Logging
	if cfg.Debug.Verbose {
		logCfg.Level = "debug"
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logging.SetLogger(logger)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		out:     out,
		format:  outputFormat,
	}, nil
}

// loadManifest reads the configured manifest once
func (a *app) loadManifest() (*manifest.Manifest, error) {
	if a.manifest != nil {
		return a.manifest, nil
	}

	m, err := manifest.LoadFromFile(a.cfg.Migrations.Manifest)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"manifest":       a.cfg.Migrations.Manifest,
		"schema_version": int(m.Schema.Version),
		"migrations":     m.Registry.Len(),
	}).Debug("Loaded manifest")

	a.manifest = m

	return m, nil
}

// openAdapter opens the configured store for the manifest schema. The store
// is not set up yet.
func (a *app) openAdapter() (storage.Adapter, error) {
	m, err := a.loadManifest()
	if err != nil {
		return nil, err
	}

	if err := a.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	adapter, err := storage.NewAdapterFromConfig(&a.cfg.Database, storage.Options{
		Schema:     m.Schema,
		Migrations: m.Registry,
		Logger:     a.logger,
		Metrics:    a.metrics,
		OnFatal: func(err error) {
			a.logger.ErrorWithErr("Store is broken, restart to recover", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Database.Backend, err)
	}

	return adapter, nil
}

// close writes the metrics textfile and releases the logger
func (a *app) close() error {
	var err error

	if a.metrics != nil && a.cfg.Metrics.Textfile != "" {
		if err = a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.ErrorWithErr("Failed to write metrics textfile", err)
		}
	}

	if closeErr := a.logger.Close(); err == nil {
		err = closeErr
	}

	return err
}

// print writes rendered output followed by a newline
func (a *app) print(out string) error {
	_, err := fmt.Fprintln(a.out, out)
	return err
}

// withApp wraps a command action with app set-up and tear-down
func withApp(fn func(ctx context.Context, a *app, cmd *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		err = fn(ctx, a, cmd)

		if closeErr := a.close(); err == nil {
			err = closeErr
		}

		return err
	}
}

// versionFlag reads a schema version flag. Zero means unset.
func versionFlag(cmd *cli.Command, name string) (schema.Version, error) {
	value := cmd.Int(name)
	if value < 0 {
		return 0, errors.NewConfigError("version must not be negative: "+strconv.Itoa(int(value)), name)
	}

	return schema.Version(value), nil
}
