package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/corpus"
)

var (
	filterKey         string
	filterScanSubdirs bool
)

func init() {
	filterCmd.Flags().StringVar(&filterKey, "key", "has_reviews", "Boolean JSON property selecting the files to move")
	filterCmd.Flags().BoolVar(&filterScanSubdirs, "scan-subdirs", false, "Read the JSON files one level down and move their whole directory")
	rootCmd.AddCommand(filterCmd)
}

var filterCmd = &cobra.Command{
	Use:   "filter <src> <dest>",
	Short: "Move JSON files whose boolean property is true",
	Long: `Move the JSON files of <src> whose property --key is true into <dest>.

With --scan-subdirs the JSON files of each subdirectory of <src> are read and the
whole subdirectory is moved. Files already in <dest> are kept unless --update.`,
	Args: cobra.ExactArgs(2),
	RunE: runFilter,
}

func runFilter(cmd *cobra.Command, args []string) error {
	src, dest := config.ExpandPath(args[0]), config.ExpandPath(args[1])
	res, err := corpus.Filter(src, dest, corpus.FilterOptions{
		Key:         filterKey,
		ScanSubdirs: filterScanSubdirs,
		Update:      cfg.Update,
	}, logger())
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	if humanOutput {
		outputHuman("Scanned %d files: %d moved, %d kept, %d already in %s, %d invalid\n",
			res.Scanned, res.Moved, res.Kept, res.Skipped, dest, res.Invalid)
	} else {
		outputJSON(res)
	}
	return nil
}
