package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/publisher"
)

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configTablesCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
	Long: `Inspect the effective configuration.

Settings are read, in increasing precedence, from built-in defaults, the config
file (--config, or the global file), REVHARVEST_* environment variables (a .env
file in the working directory is loaded first) and command-line flags.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if humanOutput {
			return printYAML(cfg)
		}
		return outputJSON(cfg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the global config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GlobalConfigPath()
		if humanOutput {
			outputHuman("%s\n", path)
			return nil
		}
		_, err := os.Stat(path)
		return outputJSON(struct {
			Path   string `json:"path"`
			Exists bool   `json:"exists"`
		}{path, err == nil})
	},
}

var configTablesCmd = &cobra.Command{
	Use:   "tables [publisher]",
	Short: "Print the publisher tables in effect",
	Long: `Print the selector and pattern tables in effect, as YAML.

Copy a publisher's table into a file, edit it and pass the file with --tables
to override it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := publisher.LoadTables(cfg.Tables)
		if err != nil {
			exitWithError(ExitConfigError, "loading publisher tables: %v", err)
		}
		if len(args) == 1 {
			t, err := tables.Get(args[0])
			if err != nil {
				exitWithError(ExitConfigError, "%v", err)
			}
			tables = publisher.Tables{args[0]: t}
		}
		return printYAML(tables)
	},
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}
