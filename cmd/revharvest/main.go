// Package main provides the revharvest CLI entry point.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string

	// Set by the root command before any subcommand runs.
	cfg    *config.Config
	logRun *logging.Run
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "revharvest",
	Short: "Harvest peer-review documents of scientific articles",
	Long: `revharvest collects article metadata and peer-review documents from MDPI
article pages and from the PLOS and eLife full-text corpora, and stores them as
JSON files under one output directory per publisher.

Runs are incremental: files that exist are kept unless --update is given, and an
interrupted corpus pass resumes where it stopped. All commands print a JSON
summary on stdout; logs go to stderr.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logRun != nil {
			logRun.Close()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	pf.StringVar(&configPath, "config", "", "Config file (default "+config.GlobalConfigPath()+")")
	pf.String(config.FlagName(config.KeyDumpDir), "", "Output root holding one directory per publisher")
	pf.Bool(config.FlagName(config.KeyUpdate), false, "Overwrite files that already exist")
	pf.Int(config.FlagName(config.KeyWorkers), 0, "Articles handled concurrently (default: number of CPUs)")
	pf.String(config.FlagName(config.KeyLogLevel), "", "Log level: debug, info, warn or error")
	pf.String(config.FlagName(config.KeyLogFormat), "", "Log format: console or json")
	pf.String(config.FlagName(config.KeyLogFile), "", "Also write the log to this file")
	pf.String(config.FlagName(config.KeyTables), "", "YAML file overriding the built-in publisher tables")
	rootCmd.Version = Version
}

// setup loads the configuration and builds the run logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(config.EnvFile); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	c, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if errs := c.Validate(); len(errs) > 0 {
		exitWithError(ExitConfigError, "%v", errors.Join(errs...))
	}

	run, err := logging.New(logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile})
	if err != nil {
		exitWithError(ExitConfigError, "setting up logging: %v", err)
	}
	cfg, logRun = c, run
	run.Logger.Debug("starting", zap.String("command", cmd.CommandPath()), zap.String("version", Version))
	return nil
}

// logger returns the run logger, or a no-op logger outside a run.
func logger() *zap.Logger {
	if logRun == nil {
		return zap.NewNop()
	}
	return logRun.Logger
}

func runID() string {
	if logRun == nil {
		return ""
	}
	return logRun.ID
}

// requireOneOf exits unless exactly one of the named string flags is set.
func requireOneOf(cmd *cobra.Command, names ...string) string {
	var set []string
	for _, name := range names {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			set = append(set, name)
		}
	}
	if len(set) != 1 {
		exitWithError(ExitConfigError, "exactly one of --%s is required", strings.Join(names, " or --"))
	}
	return set[0]
}
