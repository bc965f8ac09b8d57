// Package index keeps a SQLite index of the articles of one publisher root. The
// JSON files under all_articles are the source of truth; the index is rebuilt from
// them and never written to by the harvest itself.
package index

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/matsen/revharvest/internal/article"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// Entry is one indexed article.
type Entry struct {
	ShortID     string `json:"short_id"`
	DOI         string `json:"doi"`
	Title       string `json:"title"`
	Journal     string `json:"journal"`
	Year        int    `json:"year"`
	Retracted   bool   `json:"retracted"`
	HasReviews  bool   `json:"has_reviews"`
	ReviewsURL  string `json:"reviews_url,omitempty"`
	SubArticles int    `json:"sub_articles"`
}

const selectFields = `short_id, doi, title, journal, pub_year, retracted,
	has_reviews, reviews_url, sub_articles`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS articles (
			short_id TEXT PRIMARY KEY,
			doi TEXT NOT NULL,
			title TEXT NOT NULL,
			journal TEXT,
			pub_year INTEGER,
			retracted INTEGER NOT NULL DEFAULT 0,
			has_reviews INTEGER NOT NULL DEFAULT 0,
			reviews_url TEXT,
			sub_articles INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_articles_doi ON articles(doi);
		CREATE INDEX IF NOT EXISTS idx_articles_reviewed ON articles(has_reviews);

		-- Full-text search over titles, authors and keywords
		CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
			short_id,
			title,
			authors_text,
			keywords_text
		);
	`
	_, err := db.Exec(schema)
	return err
}

// RebuildFromDir clears the index and fills it from the article JSON files in dir.
// Files that cannot be read or decoded are logged and left out.
func (d *DB) RebuildFromDir(dir string, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(paths)

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM articles"); err != nil {
		return 0, fmt.Errorf("clearing articles table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM articles_fts"); err != nil {
		return 0, fmt.Errorf("clearing articles_fts table: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO articles (` + selectFields + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing articles insert: %w", err)
	}
	defer stmt.Close()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO articles_fts (short_id, title, authors_text, keywords_text)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	count := 0
	for _, path := range paths {
		a, err := readArticle(path)
		if err != nil {
			log.Warn("skipping unreadable article", zap.String("path", path), zap.Error(err))
			continue
		}
		_, err = stmt.Exec(
			a.ShortID, a.DOI, a.Title, nullableString(a.Journal.Title), a.PublicationDate.Year,
			a.Retracted, a.HasReviews, nullableString(a.ReviewsURL), len(a.SubArticles),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting article %s: %w", a.ShortID, err)
		}
		_, err = ftsStmt.Exec(a.ShortID, a.Title, strings.Join(a.Authors, ", "), strings.Join(a.Keywords, ", "))
		if err != nil {
			return 0, fmt.Errorf("inserting fts for %s: %w", a.ShortID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing index: %w", err)
	}
	log.Info("rebuilt index", zap.String("dir", dir), zap.Int("articles", count))
	return count, nil
}

func readArticle(path string) (*article.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a article.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if a.ShortID == "" {
		return nil, fmt.Errorf("no short_id")
	}
	return &a, nil
}

// Count returns the number of indexed articles.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM articles").Scan(&count)
	return count, err
}

// CountReviewed returns the number of indexed articles with reviews.
func (d *DB) CountReviewed() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM articles WHERE has_reviews = 1").Scan(&count)
	return count, err
}

// Get returns the article with the given short id, or nil.
func (d *DB) Get(shortID string) (*Entry, error) {
	row := d.db.QueryRow(`SELECT `+selectFields+` FROM articles WHERE short_id = ?`, shortID)
	return scanEntry(row)
}

// Reviewed lists the reviewed articles by short id. limit <= 0 lists all.
func (d *DB) Reviewed(limit int) ([]Entry, error) {
	query := `SELECT ` + selectFields + ` FROM articles WHERE has_reviews = 1 ORDER BY short_id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reviewed articles: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Search runs a full-text query over titles, authors and keywords. limit <= 0
// returns every match.
func (d *DB) Search(query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT `+selectFields+`
		FROM articles
		WHERE short_id IN (SELECT short_id FROM articles_fts WHERE articles_fts MATCH ?)
		ORDER BY short_id
		LIMIT ?`, prepareFTSQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ExportReviewURLs writes a short_id,reviews_url CSV of the reviewed articles that
// have a review URL and returns the number of rows written.
func (d *DB) ExportReviewURLs(w io.Writer) (int, error) {
	rows, err := d.db.Query(`
		SELECT short_id, reviews_url FROM articles
		WHERE has_reviews = 1 AND reviews_url IS NOT NULL AND reviews_url != ''
		ORDER BY short_id`)
	if err != nil {
		return 0, fmt.Errorf("listing review URLs: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"short_id", "reviews_url"}); err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		var short, url string
		if err := rows.Scan(&short, &url); err != nil {
			return n, err
		}
		if err := cw.Write([]string{short, url}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var journal, reviewsURL sql.NullString
	var year sql.NullInt64
	err := s.Scan(&e.ShortID, &e.DOI, &e.Title, &journal, &year, &e.Retracted,
		&e.HasReviews, &reviewsURL, &e.SubArticles)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.Journal = journal.String
	e.ReviewsURL = reviewsURL.String
	if year.Valid {
		e.Year = int(year.Int64)
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// nullableString converts a string to sql.NullString, treating empty as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prepareFTSQuery quotes queries containing FTS5 operators.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}
	if strings.ContainsAny(query, "\"*+-:(){}[]^~.") {
		return "\"" + strings.ReplaceAll(query, "\"", "\"\"") + "\""
	}
	return query
}
