package main

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/index"
	"github.com/matsen/revharvest/internal/publisher"
)

// Title truncation length for human-readable listings.
const listTitleMaxLen = 60

var (
	indexPublisher string
	indexLimit     int
	exportPath     string
)

func init() {
	indexCmd.PersistentFlags().StringVarP(&indexPublisher, "publisher", "p", publisher.MDPI, "Publisher whose output is indexed")
	indexReviewedCmd.Flags().IntVar(&indexLimit, "limit", 0, "Maximum number of articles (0: all)")
	indexSearchCmd.Flags().IntVar(&indexLimit, "limit", 50, "Maximum number of results")
	indexExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "CSV file to write (default {root}/"+config.ReviewURLsFile+")")
	indexCmd.AddCommand(indexRebuildCmd, indexReviewedCmd, indexSearchCmd, indexExportCmd)
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Query the SQLite index of harvested articles",
	Long: `Query the SQLite index of harvested articles.

The index is built from the JSON files in all_articles by "index rebuild" and is
never updated by a harvest; rebuild it after harvesting.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from all_articles",
	Args:  cobra.NoArgs,
	RunE:  runIndexRebuild,
}

var indexReviewedCmd = &cobra.Command{
	Use:   "reviewed",
	Short: "List the indexed articles that have reviews",
	Args:  cobra.NoArgs,
	RunE:  runIndexReviewed,
}

var indexSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles, authors and keywords",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexSearch,
}

var indexExportCmd = &cobra.Command{
	Use:   "export-csv",
	Short: "Write the review URLs of reviewed articles as CSV",
	Long: `Write a short_id,reviews_url CSV of the reviewed articles in the index.

The file can be fed back to "mdpi reviews --csv".`,
	Args: cobra.NoArgs,
	RunE: runIndexExport,
}

// RebuildResult is the response for the index rebuild command.
type RebuildResult struct {
	Status   string `json:"status"`
	Path     string `json:"path"`
	Articles int    `json:"articles"`
	Reviewed int    `json:"reviewed"`
}

func openIndex() (*index.DB, string) {
	root := config.PublisherRoot(cfg.DumpDir, indexPublisher)
	db, err := index.OpenDB(config.IndexPath(root))
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	return db, root
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	db, root := openIndex()
	defer db.Close()

	count, err := db.RebuildFromDir(config.AllArticlesPath(root), logger())
	if err != nil {
		exitWithError(ExitDataError, "rebuilding index: %v", err)
	}
	reviewed, err := db.CountReviewed()
	if err != nil {
		exitWithError(ExitError, "counting reviewed articles: %v", err)
	}

	if humanOutput {
		outputHuman("Indexed %d articles (%d reviewed) in %s\n", count, reviewed, config.IndexPath(root))
	} else {
		outputJSON(RebuildResult{Status: "rebuilt", Path: config.IndexPath(root), Articles: count, Reviewed: reviewed})
	}
	return nil
}

func printEntries(entries []index.Entry) {
	if !humanOutput {
		if entries == nil {
			entries = []index.Entry{}
		}
		outputJSON(entries)
		return
	}
	for _, e := range entries {
		outputHuman("%-24s %4d  %2d  %s\n", e.ShortID, e.Year, e.SubArticles, truncateString(e.Title, listTitleMaxLen))
	}
	outputHuman("%d articles\n", len(entries))
}

func runIndexReviewed(cmd *cobra.Command, args []string) error {
	db, _ := openIndex()
	defer db.Close()
	entries, err := db.Reviewed(indexLimit)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	printEntries(entries)
	return nil
}

func runIndexSearch(cmd *cobra.Command, args []string) error {
	db, _ := openIndex()
	defer db.Close()
	entries, err := db.Search(args[0], indexLimit)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	printEntries(entries)
	return nil
}

func runIndexExport(cmd *cobra.Command, args []string) error {
	db, root := openIndex()
	defer db.Close()

	var buf bytes.Buffer
	n, err := db.ExportReviewURLs(&buf)
	if err != nil {
		exitWithError(ExitError, "exporting review URLs: %v", err)
	}
	path := config.ReviewURLsPath(root)
	if exportPath != "" {
		path = config.ExpandPath(exportPath)
	}
	e := newEnv(indexPublisher)
	if _, err := e.store.Put(path, buf.Bytes(), true); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Wrote %d review URLs to %s\n", n, path)
	} else {
		outputJSON(StatusResponse{Status: "exported", Path: path, Count: n})
	}
	return nil
}
