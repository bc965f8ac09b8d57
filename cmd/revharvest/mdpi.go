package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/corpus"
	"github.com/matsen/revharvest/internal/harvest"
	"github.com/matsen/revharvest/internal/publisher"
)

func init() {
	mdpiArticlesCmd.Flags().StringVarP(&mdpiURLFile, "file", "f", "", "File listing one article URL per line")
	mdpiArticlesCmd.Flags().BoolVar(&mdpiFollowReviews, "follow-reviews", false, "Also harvest the review reports of reviewed articles")
	mdpiArticlesCmd.Flags().Bool(config.FlagName(config.KeyIncludeUnregistered), true, "Keep articles whose DOI is not registered yet")
	mdpiArticlesCmd.Flags().Bool(config.FlagName(config.KeySaveHTML), false, "Save the review page HTML")

	mdpiReviewsCmd.Flags().StringVarP(&mdpiURLFile, "file", "f", "", "File listing one review URL per line")
	mdpiReviewsCmd.Flags().StringVar(&mdpiCSV, "csv", "", "CSV with short_id and reviews_url columns, as written by index export-csv")
	mdpiReviewsCmd.Flags().Bool(config.FlagName(config.KeySaveHTML), false, "Save the review page HTML")

	for _, cmd := range []*cobra.Command{mdpiArticlesCmd, mdpiReviewsCmd} {
		cmd.Flags().Int(config.FlagName(config.KeyMaxArticles), 0, "Stop after this many URLs (0: no limit)")
		cmd.Flags().Bool(config.FlagName(config.KeySkipSupplementaryDownload), false, "Do not download review attachments")
		cmd.Flags().Bool(config.FlagName(config.KeyExtractPDFText), true, "Extract the text of downloaded PDF attachments")
		cmd.Flags().Int(config.FlagName(config.KeyPDFMaxPages), 0, "Extract at most this many pages per PDF (0: all)")
		cmd.Flags().String(config.FlagName(config.KeyBoilerplatePolicy), "", "At resubmission boilerplate: stop or skip")
		mdpiCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(mdpiCmd)
}

var (
	mdpiURLFile       string
	mdpiCSV           string
	mdpiFollowReviews bool
)

var mdpiCmd = &cobra.Command{
	Use:   "mdpi",
	Short: "Harvest MDPI article and review pages",
}

var mdpiArticlesCmd = &cobra.Command{
	Use:   "articles [url...]",
	Short: "Harvest MDPI article pages",
	Long: `Harvest the metadata of MDPI articles from their article pages.

URLs come from the arguments or from --file. Articles with open peer review are
saved to reviewed_articles; with --follow-reviews their review reports are
harvested in the same pass.`,
	RunE: runMDPIArticles,
}

var mdpiReviewsCmd = &cobra.Command{
	Use:   "reviews [url...]",
	Short: "Harvest MDPI review reports",
	Long: `Harvest the review reports of MDPI articles.

Review URLs come from the arguments, from --file, from --csv, or, when none is
given, from the metadata of the articles in reviewed_articles that have no
sub-articles yet (all of them with --update).`,
	RunE: runMDPIReviews,
}

func urlSource(args []string) *corpus.URLSource {
	urls := append([]string(nil), args...)
	if mdpiURLFile != "" {
		listed, err := corpus.ReadURLFile(config.ExpandPath(mdpiURLFile))
		if err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		urls = append(urls, listed...)
	}
	return &corpus.URLSource{URLs: urls}
}

func runMDPIArticles(cmd *cobra.Command, args []string) error {
	src := urlSource(args)
	if len(src.URLs) == 0 {
		exitWithError(ExitConfigError, "no article URLs given")
	}
	e := newEnv(publisher.MDPI)
	pages := e.pages()
	h := &harvest.MDPIArticles{
		Pages:               pages,
		Saver:               e.saver(e.downloader()),
		IncludeUnregistered: cfg.IncludeUnregistered,
		Log:                 e.log,
	}
	if mdpiFollowReviews {
		h.Reviews = e.collector(pages)
	}
	e.run(cmd.Context(), h, src, false)
	return nil
}

func runMDPIReviews(cmd *cobra.Command, args []string) error {
	e := newEnv(publisher.MDPI)
	var src corpus.Source
	switch {
	case len(args) > 0 || mdpiURLFile != "":
		src = urlSource(args)
	case mdpiCSV != "":
		src = &corpus.CSVSource{Path: config.ExpandPath(mdpiCSV)}
	default:
		src = &corpus.ReviewedSource{Root: e.root, Update: cfg.Update, Log: e.log}
	}

	pages := e.pages()
	h := &harvest.MDPIReviews{
		Reviews: e.collector(pages),
		Saver:   e.saver(e.downloader()),
		Log:     e.log,
	}
	e.run(cmd.Context(), h, src, false)
	return nil
}
