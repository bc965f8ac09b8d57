package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Output layout names, relative to a publisher root.
const (
	AllArticlesDir = "all_articles"
	ReviewedDir    = "reviewed_articles"
	SubArticlesDir = "sub-articles"
	MetadataFile   = "metadata.json"
	CheckpointFile = "lastrun.json"
	IndexFile      = "index.db"
	ReviewURLsFile = "reviews-urls.csv"
)

// PublisherRoot returns the output root of one publisher under dumpDir.
func PublisherRoot(dumpDir, publisher string) string {
	return filepath.Join(dumpDir, strings.ToLower(publisher))
}

// AllArticlesPath returns the directory holding every article's metadata.
func AllArticlesPath(root string) string {
	return filepath.Join(root, AllArticlesDir)
}

// ArticlePath returns the metadata file of an article in all_articles.
func ArticlePath(root, short string) string {
	return filepath.Join(root, AllArticlesDir, short+".json")
}

// ReviewedPath returns the directory holding reviewed articles.
func ReviewedPath(root string) string {
	return filepath.Join(root, ReviewedDir)
}

// ReviewedArticlePath returns the directory of one reviewed article.
func ReviewedArticlePath(root, short string) string {
	return filepath.Join(root, ReviewedDir, short)
}

// MetadataPath returns the metadata file of a reviewed article.
func MetadataPath(root, short string) string {
	return filepath.Join(root, ReviewedDir, short, MetadataFile)
}

// SubArticlesPath returns the directory holding a reviewed article's sub-articles
// and materials.
func SubArticlesPath(root, short string) string {
	return filepath.Join(root, ReviewedDir, short, SubArticlesDir)
}

// CheckpointPath returns the path to lastrun.json.
func CheckpointPath(root string) string {
	return filepath.Join(root, CheckpointFile)
}

// IndexPath returns the path to the SQLite index.
func IndexPath(root string) string {
	return filepath.Join(root, IndexFile)
}

// ReviewURLsPath returns the path to the reviews-url CSV export.
func ReviewURLsPath(root string) string {
	return filepath.Join(root, ReviewURLsFile)
}

// HasMetadata reports whether an article was already harvested.
func HasMetadata(root, short string) bool {
	_, err := os.Stat(ArticlePath(root, short))
	return err == nil
}

// IsReviewed reports whether an article has a reviewed directory.
func IsReviewed(root, short string) bool {
	info, err := os.Stat(ReviewedArticlePath(root, short))
	return err == nil && info.IsDir()
}
