package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/internal/config"
	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

// app carries the state shared by all subcommands once flags and config
// are resolved.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	metrics    bool

	cfg *config.Config
	log *slog.Logger
	reg *prometheus.Registry
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "shapestore",
		Short: "Query shapefiles as a spatial feature store",
		Long: `shapestore serves the records of ESRI shapefiles through an R-tree index
kept in a side-car file next to the geometry file.

Commands:
  info      Describe a shapefile
  query     Select records by bounding box and attribute filters
  index     Build or rebuild the side-car index
  catalog   List the shapefiles under a directory that cover an area`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.report,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default .shapestore.yaml in . or $HOME)")
	flags.StringVar(&a.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", config.DefaultLogFormat, "log format: text, json")
	flags.BoolVar(&a.metrics, "metrics", false, "print store metrics after the command")

	root.AddCommand(
		newInfoCommand(a),
		newQueryCommand(a),
		newIndexCommand(a),
		newCatalogCommand(a),
	)
	return root
}

// setup loads configuration; flags given on the command line win over the
// config file and environment.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	log, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.reg = prometheus.NewRegistry()
	return nil
}

func (a *app) report(cmd *cobra.Command, _ []string) error {
	if !a.metrics {
		return nil
	}
	return printMetrics(cmd.OutOrStdout(), a.reg)
}

func (a *app) storeOptions() (shapestore.Options, error) {
	opts, err := a.cfg.StoreOptions(a.log, a.reg)
	if err != nil {
		return shapestore.Options{}, fmt.Errorf("store options: %w", err)
	}
	return opts, nil
}

func (a *app) openStore(path string) (*shapestore.Store, error) {
	opts, err := a.storeOptions()
	if err != nil {
		return nil, err
	}
	return shapestore.Open(path, opts)
}
