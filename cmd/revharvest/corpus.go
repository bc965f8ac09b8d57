package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/corpus"
	"github.com/matsen/revharvest/internal/harvest"
	"github.com/matsen/revharvest/internal/publisher"
)

func init() {
	corpusCmd.AddCommand(newCorpusCmd(publisher.PLOS, "PLOS allofplos corpus (zip archive or unpacked directory)"))
	corpusCmd.AddCommand(newCorpusCmd(publisher.ELife, "eLife article XML directory"))
	rootCmd.AddCommand(corpusCmd)
}

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Harvest a full-text JATS corpus",
	Long: `Harvest the articles of a full-text JATS corpus.

Every article is saved to all_articles; articles carrying peer-review
sub-articles also get a reviewed_articles directory with the source XML, one
JSON and one XML file per sub-article, and the downloaded attachments.

Progress is checkpointed in lastrun.json; an interrupted pass resumes after the
last contiguous run of finished files.`,
}

type corpusFlags struct {
	zip            string
	dir            string
	rescanReviewed bool
	allVersions    bool
	restart        bool
}

func newCorpusCmd(name, what string) *cobra.Command {
	var f corpusFlags
	cmd := &cobra.Command{
		Use:   name,
		Short: "Harvest the " + what,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorpus(cmd, name, f)
		},
	}
	cmd.Flags().StringVar(&f.zip, "zip", "", "Corpus zip archive")
	cmd.Flags().StringVar(&f.dir, "dir", "", "Directory of article XML files")
	cmd.Flags().BoolVar(&f.rescanReviewed, "rescan-reviewed", false, "Only handle articles already in reviewed_articles (use with --update)")
	cmd.Flags().BoolVar(&f.restart, "restart", false, "Ignore the checkpoint and start from the first file")
	cmd.Flags().Int(config.FlagName(config.KeyMaxArticles), 0, "Stop after this many files (0: no limit)")
	cmd.Flags().Bool(config.FlagName(config.KeySkipSupplementaryDownload), false, "Do not download sub-article attachments")
	cmd.Flags().Bool(config.FlagName(config.KeyExtractPDFText), true, "Extract the text of downloaded PDF attachments")
	cmd.Flags().Int(config.FlagName(config.KeyPDFMaxPages), 0, "Extract at most this many pages per PDF (0: all)")
	if name == publisher.ELife {
		cmd.Flags().BoolVar(&f.allVersions, "all-versions", false, "Harvest every version of an article, not just the newest")
	}
	return cmd
}

func runCorpus(cmd *cobra.Command, name string, f corpusFlags) error {
	which := requireOneOf(cmd, "zip", "dir")
	e := newEnv(name)
	if e.table.Format != publisher.FormatJATS {
		exitWithError(ExitConfigError, "publisher %s is not a JATS corpus", name)
	}

	var src corpus.Source
	switch which {
	case "zip":
		zs := &corpus.ZipSource{Path: config.ExpandPath(f.zip)}
		defer zs.Close()
		src = zs
	case "dir":
		dir := config.ExpandPath(f.dir)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			exitWithError(ExitConfigError, "not a directory: %s", dir)
		}
		src = &corpus.DirSource{Dir: dir, NewestVersion: name == publisher.ELife && !f.allVersions, Log: e.log}
	}

	h := &harvest.JATS{Table: e.table, Saver: e.saver(e.downloader()), Log: e.log}
	if f.rescanReviewed {
		src = corpus.ReviewedOnly(src, e.root, h.ShortID)
	}

	// A rescan lists a different sequence, so the checkpoint does not apply to it.
	checkpoint := !f.rescanReviewed
	if checkpoint && f.restart {
		if err := os.Remove(config.CheckpointPath(e.root)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			exitWithError(ExitError, "removing checkpoint: %v", err)
		}
	}
	e.run(cmd.Context(), h, src, checkpoint)
	return nil
}
