package index

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matsen/revharvest/internal/article"
)

func writeArticle(t *testing.T, dir string, a article.Article) {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, a.ShortID+".json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

// setupTestDB indexes three articles, two of them reviewed.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	writeArticle(t, dir, article.Article{
		DOI: "10.3390/w13010001", ShortID: "w13010001", Title: "Rainfall and Rivers",
		Authors: []string{"Ada Lovelace"}, Keywords: []string{"hydrology"},
		Journal:         article.Journal{Title: "Water"},
		PublicationDate: article.PublicationDate{Year: 2021, Month: 1},
		HasReviews:      true, ReviewsURL: "https://www.mdpi.com/2073-4441/13/1/1/review_report",
		SubArticles: []article.SubArticle{{ID: "w13010001.r11"}, {ID: "w13010001.a11"}},
	})
	writeArticle(t, dir, article.Article{
		DOI: "10.3390/w13010002", ShortID: "w13010002", Title: "Lakes",
		Authors: []string{"Alan Turing"}, PublicationDate: article.PublicationDate{Year: 2020},
	})
	writeArticle(t, dir, article.Article{
		DOI: "10.3390/w13010003", ShortID: "w13010003", Title: "Glaciers",
		HasReviews: true, ReviewsURL: "https://www.mdpi.com/2073-4441/13/1/3#review_report",
	})

	db, err := OpenDB(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	n, err := db.RebuildFromDir(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("RebuildFromDir() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("RebuildFromDir() = %d, want 3", n)
	}
	return db
}

func TestRebuildFromDir(t *testing.T) {
	db := setupTestDB(t)

	count, err := db.Count()
	if err != nil || count != 3 {
		t.Errorf("Count() = %d, %v; want 3", count, err)
	}
	reviewed, err := db.CountReviewed()
	if err != nil || reviewed != 2 {
		t.Errorf("CountReviewed() = %d, %v; want 2", reviewed, err)
	}

	e, err := db.Get("w13010001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := Entry{
		ShortID: "w13010001", DOI: "10.3390/w13010001", Title: "Rainfall and Rivers",
		Journal: "Water", Year: 2021, HasReviews: true,
		ReviewsURL:  "https://www.mdpi.com/2073-4441/13/1/1/review_report",
		SubArticles: 2,
	}
	if e == nil || *e != want {
		t.Errorf("Get() = %+v, want %+v", e, want)
	}

	missing, err := db.Get("nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %+v, %v; want nil", missing, err)
	}
}

func TestRebuildFromDir_Replaces(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	writeArticle(t, dir, article.Article{DOI: "10.1371/journal.pone.1", ShortID: "journal.pone.1", Title: "Fish"})

	n, err := db.RebuildFromDir(dir, nil)
	if err != nil || n != 1 {
		t.Fatalf("RebuildFromDir() = %d, %v; want 1", n, err)
	}
	if count, _ := db.Count(); count != 1 {
		t.Errorf("Count() = %d after rebuild, want 1", count)
	}
}

func TestRebuildFromDir_SkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeArticle(t, dir, article.Article{DOI: "10.3390/w1", ShortID: "w1", Title: "Ok"})
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "anon.json"), []byte(`{"title": "x"}`), 0644); err != nil {
		t.Fatal(err)
	}

	db, err := OpenDB(filepath.Join(t.TempDir(), "sub", "index.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()

	core, logs := observer.New(zap.WarnLevel)
	n, err := db.RebuildFromDir(dir, zap.New(core))
	if err != nil {
		t.Fatalf("RebuildFromDir() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RebuildFromDir() = %d, want 1", n)
	}
	if logs.FilterMessage("skipping unreadable article").Len() != 2 {
		t.Errorf("expected two warnings, got %d", logs.Len())
	}
}

func TestReviewed(t *testing.T) {
	db := setupTestDB(t)
	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"w13010001", "w13010003"}},
		{1, []string{"w13010001"}},
	}
	for _, tt := range tests {
		entries, err := db.Reviewed(tt.limit)
		if err != nil {
			t.Fatalf("Reviewed(%d) error = %v", tt.limit, err)
		}
		if len(entries) != len(tt.want) {
			t.Fatalf("Reviewed(%d) = %+v", tt.limit, entries)
		}
		for i, e := range entries {
			if e.ShortID != tt.want[i] {
				t.Errorf("Reviewed(%d)[%d] = %s, want %s", tt.limit, i, e.ShortID, tt.want[i])
			}
		}
	}
}

func TestSearch(t *testing.T) {
	db := setupTestDB(t)
	tests := []struct {
		query string
		want  int
	}{
		{"rivers", 1},
		{"turing", 1},
		{"hydrology", 1},
		{"volcano", 0},
		{"w13010001.r11", 0},
	}
	for _, tt := range tests {
		entries, err := db.Search(tt.query, 0)
		if err != nil {
			t.Errorf("Search(%q) error = %v", tt.query, err)
			continue
		}
		if len(entries) != tt.want {
			t.Errorf("Search(%q) = %d results, want %d", tt.query, len(entries), tt.want)
		}
	}
}

func TestExportReviewURLs(t *testing.T) {
	db := setupTestDB(t)
	var buf bytes.Buffer
	n, err := db.ExportReviewURLs(&buf)
	if err != nil {
		t.Fatalf("ExportReviewURLs() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ExportReviewURLs() = %d, want 2", n)
	}
	want := "short_id,reviews_url\n" +
		"w13010001,https://www.mdpi.com/2073-4441/13/1/1/review_report\n" +
		"w13010003,https://www.mdpi.com/2073-4441/13/1/3#review_report\n"
	if buf.String() != want {
		t.Errorf("CSV =\n%s\nwant\n%s", buf.String(), want)
	}
}
