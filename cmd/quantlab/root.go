package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"quantlab/internal/config"
	"quantlab/internal/engine"
	"quantlab/internal/util"
)

// app carries the state shared by subcommands once the root command has
// loaded the configuration.
type app struct {
	cfgPath  string
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	log    *slog.Logger
	engine *engine.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "quantlab",
		Short:         "Quantitative analytics and backtesting over stored bars",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "version", "help", "completion":
				return nil
			}
			return a.setup()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.engine != nil {
				return a.engine.Close()
			}
			return nil
		},
	}

	defaultCfg := os.Getenv("QUANTLAB_CONFIG")
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultCfg, "path to YAML config (env QUANTLAB_CONFIG)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		newAnalyzeCmd(a),
		newCorrelateCmd(a),
		newBacktestCmd(a),
		newSweepCmd(a),
		newSymbolsCmd(a),
		newStrategiesCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(a.log)

	e, err := engine.Open(cfg, a.log)
	if err != nil {
		return err
	}
	a.engine = e
	a.log.Debug("engine ready",
		"store", cfg.Storage.Kind,
		"data_dir", cfg.Storage.DataDir,
		"interval", cfg.Analytics.Interval,
	)
	return nil
}
