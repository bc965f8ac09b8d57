package harvest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/corpus"
	"github.com/matsen/revharvest/internal/fetch"
	"github.com/matsen/revharvest/internal/persist"
	"github.com/matsen/revharvest/internal/publisher"
	"github.com/matsen/revharvest/internal/review"
)

type fakePages map[string]string

func (f fakePages) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	body, ok := f[url]
	if !ok {
		return nil, &fetch.FetchError{URL: url, StatusCode: 404}
	}
	return &fetch.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

type fakeOpener struct {
	mu    sync.Mutex
	files map[string][]byte
	calls int
}

func (f *fakeOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if strings.Contains(url, "/cdn-cgi/l/email-protection") {
		return nil, &fetch.FetchError{URL: url, Err: fetch.ErrEmailProtected}
	}
	data, ok := f.files[url]
	if !ok {
		return nil, &fetch.FetchError{URL: url, StatusCode: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeOpener) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mustTable(t *testing.T, name string) *publisher.Table {
	t.Helper()
	tables, err := publisher.DefaultTables()
	if err != nil {
		t.Fatalf("DefaultTables() error = %v", err)
	}
	tbl, err := tables.Get(name)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", name, err)
	}
	return tbl
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// minimalPDF builds a one-page PDF showing text.
func minimalPDF(text string) []byte {
	return pagedPDF(text)
}

// pagedPDF builds a PDF with one page per text.
func pagedPDF(texts ...string) []byte {
	kids := make([]string, len(texts))
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(texts)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	for i, text := range texts {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func reviewedArticle() *article.Article {
	return &article.Article{
		DOI:        "10.3390/w1",
		ShortID:    "w1",
		Title:      "Rivers",
		HasReviews: true,
		ReviewsURL: "https://www.mdpi.com/w1/review_report",
		SubArticles: []article.SubArticle{
			{
				ID:       "w1.r11",
				Type:     article.TypeReview,
				Round:    1,
				BodyText: "Well written.",
				SupplementaryMaterials: []article.SupplementaryMaterial{
					{ID: "w1.r11.s1", Filename: "w1.r11.s1.pdf", URL: "https://www.mdpi.com/w1/file1", Type: "pdf"},
				},
			},
			{ID: "w1.a11", Type: article.TypeAuthor, Round: 1, BodyText: "Thanks."},
		},
	}
}

func TestSaver_Unreviewed(t *testing.T) {
	root := t.TempDir()
	s := NewSaver(root, persist.New(zaptest.NewLogger(t)), nil, Options{}, zaptest.NewLogger(t))
	a := &article.Article{DOI: "10.3390/w2", ShortID: "w2", Title: "Lakes"}

	outcome, err := s.Save(context.Background(), a, Extras{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if outcome != persist.Written {
		t.Errorf("outcome = %v, want written", outcome)
	}
	if !config.HasMetadata(root, "w2") {
		t.Error("all_articles record missing")
	}
	if exists(config.ReviewedArticlePath(root, "w2")) {
		t.Error("unreviewed article got a reviewed directory")
	}
}

func TestSaver_Reviewed(t *testing.T) {
	root := t.TempDir()
	opener := &fakeOpener{files: map[string][]byte{"https://www.mdpi.com/w1/file1": minimalPDF("Reviewer notes")}}
	s := NewSaver(root, persist.New(zap.NewNop()), opener, Options{ExtractPDFText: true, SaveHTML: true}, zaptest.NewLogger(t))
	a := reviewedArticle()

	if _, err := s.Save(context.Background(), a, Extras{SourceHTML: []byte("<html></html>")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	subs := config.SubArticlesPath(root, "w1")
	for _, path := range []string{
		config.ArticlePath(root, "w1"),
		config.MetadataPath(root, "w1"),
		filepath.Join(config.ReviewedArticlePath(root, "w1"), "w1.html"),
		filepath.Join(subs, "w1.r11.json"),
		filepath.Join(subs, "w1.a11.json"),
		filepath.Join(subs, "w1.r11.s1.pdf"),
	} {
		if !exists(path) {
			t.Errorf("missing %s", path)
		}
	}
	if got := readFile(t, filepath.Join(subs, "w1.r11.txt")); got != "Well written." {
		t.Errorf("body = %q", got)
	}
	if !strings.Contains(readFile(t, filepath.Join(subs, "w1.r11.json")), `"body_file": "w1.r11.txt"`) {
		t.Error("sub-article JSON does not name its body file")
	}
	if got := readFile(t, filepath.Join(subs, "w1.r11.s1.txt")); !strings.Contains(got, "Reviewer notes") {
		t.Errorf("PDF sidecar = %q", got)
	}
	if opener.Calls() != 1 {
		t.Errorf("opener called %d times, want 1", opener.Calls())
	}

	// A second pass writes nothing and downloads nothing.
	outcome, err := s.Save(context.Background(), reviewedArticle(), Extras{})
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if outcome != persist.Skipped {
		t.Errorf("second outcome = %v, want skipped", outcome)
	}
	if opener.Calls() != 1 {
		t.Errorf("opener called again on second pass")
	}
}

func TestSaver_PDFMaxPages(t *testing.T) {
	root := t.TempDir()
	opener := &fakeOpener{files: map[string][]byte{"https://www.mdpi.com/w1/file1": pagedPDF("First page", "Second page")}}
	s := NewSaver(root, persist.New(zap.NewNop()), opener, Options{ExtractPDFText: true, PDFMaxPages: 1}, zaptest.NewLogger(t))

	if _, err := s.Save(context.Background(), reviewedArticle(), Extras{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got := readFile(t, filepath.Join(config.SubArticlesPath(root, "w1"), "w1.r11.s1.txt"))
	if !strings.Contains(got, "First page") || strings.Contains(got, "Second page") {
		t.Errorf("PDF sidecar = %q, want the first page only", got)
	}
}
func TestSaver_Downloads(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		opts      Options
		wantErr   bool
		wantCalls int
	}{
		{"skip supplementary download", "https://www.mdpi.com/w1/file1", Options{SkipSupplementaryDownload: true}, false, 0},
		{"email protection ignored", "https://www.mdpi.com/cdn-cgi/l/email-protection#abc", Options{}, false, 1},
		{"missing material fails the item", "https://www.mdpi.com/w1/gone", Options{}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			opener := &fakeOpener{files: map[string][]byte{"https://www.mdpi.com/w1/file1": []byte("pdf")}}
			s := NewSaver(root, persist.New(zap.NewNop()), opener, tt.opts, zap.NewNop())
			a := reviewedArticle()
			a.SubArticles[0].SupplementaryMaterials[0].URL = tt.url

			_, err := s.Save(context.Background(), a, Extras{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}
			if opener.Calls() != tt.wantCalls {
				t.Errorf("opener called %d times, want %d", opener.Calls(), tt.wantCalls)
			}
			// Everything else is saved regardless.
			if !exists(filepath.Join(config.SubArticlesPath(root, "w1"), "w1.a11.txt")) {
				t.Error("other artifacts missing")
			}
		})
	}
}

func TestSetBodyFiles(t *testing.T) {
	subs := []article.SubArticle{{ID: "x.r1"}, {ID: "x.a2", BodyText: "text"}, {ID: "x.r3"}}
	SetBodyFiles(subs, map[string]string{"x.r1": "<sub-article/>"})
	want := []string{"x.r1.xml", "x.a2.txt", ""}
	for i, w := range want {
		if subs[i].BodyFile != w {
			t.Errorf("BodyFile[%d] = %q, want %q", i, subs[i].BodyFile, w)
		}
	}
}

const plosXML = `<?xml version="1.0" encoding="UTF-8"?>
<article xmlns:xlink="http://www.w3.org/1999/xlink" article-type="research-article">
<front>
  <journal-meta><journal-title-group><journal-title>PLOS ONE</journal-title></journal-title-group></journal-meta>
  <article-meta>
    <article-id pub-id-type="doi">10.1371/journal.pone.0262049</article-id>
    <title-group><article-title>Counting fish</article-title></title-group>
    <pub-date pub-type="epub"><day>14</day><month>1</month><year>2022</year></pub-date>
    <volume>17</volume>
  </article-meta>
</front>
<sub-article article-type="aggregated-review-documents" id="pone.0262049.r001">
  <front-stub>
    <article-id pub-id-type="doi">10.1371/journal.pone.0262049.r001</article-id>
    <title-group><article-title>Decision Letter 0</article-title></title-group>
  </front-stub>
  <body>
    <p>Reviewer #1: No</p>
    <supplementary-material id="pone.0262049.s001" mimetype="application" mime-subtype="pdf" xlink:href="pone.0262049.s001.pdf">
      <caption><p>Submitted filename: <named-content content-type="submitted-filename">notes.pdf</named-content></p></caption>
    </supplementary-material>
  </body>
</sub-article>
<sub-article article-type="author-comment" id="pone.0262049.r002">
  <front-stub>
    <article-id pub-id-type="doi">10.1371/journal.pone.0262049.r002</article-id>
    <title-group><article-title>Author response to Decision Letter 0</article-title></title-group>
  </front-stub>
  <body><p>Thanks.</p></body>
</sub-article>
</article>`

func xmlItem(name, content string) corpus.Item {
	return corpus.Item{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}}
}

func TestJATS_Handle(t *testing.T) {
	root := t.TempDir()
	opener := &fakeOpener{files: map[string][]byte{"https://doi.org/10.1371/journal.pone.0262049.s001": []byte("%PDF")}}
	h := &JATS{
		Table: mustTable(t, publisher.PLOS),
		Saver: NewSaver(root, persist.New(zap.NewNop()), opener, Options{}, zap.NewNop()),
		Log:   zaptest.NewLogger(t),
	}
	it := xmlItem("allofplos/journal.pone.0262049.xml", plosXML)
	if got := h.ShortID(it); got != "journal.pone.0262049" {
		t.Errorf("ShortID() = %q", got)
	}

	outcome, err := h.Handle(context.Background(), it)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if outcome != corpus.Reviewed {
		t.Errorf("outcome = %v, want reviewed", outcome)
	}
	short := "journal.pone.0262049"
	if got := readFile(t, filepath.Join(config.ReviewedArticlePath(root, short), short+".xml")); got != plosXML {
		t.Error("source XML not saved verbatim")
	}
	subs := config.SubArticlesPath(root, short)
	if got := readFile(t, filepath.Join(subs, short+".r1.xml")); !strings.HasPrefix(got, "<sub-article") {
		t.Errorf("sub-article body = %.40q", got)
	}
	for _, name := range []string{short + ".r1.json", short + ".a2.json", short + ".a2.xml", short + ".r1.s1.pdf"} {
		if !exists(filepath.Join(subs, name)) {
			t.Errorf("missing %s", name)
		}
	}
}

func TestJATS_Unreviewed(t *testing.T) {
	root := t.TempDir()
	h := &JATS{Table: mustTable(t, publisher.PLOS), Saver: NewSaver(root, persist.New(zap.NewNop()), nil, Options{}, nil)}
	xml := plosXML[:strings.Index(plosXML, "<sub-article")] + "</article>"

	outcome, err := h.Handle(context.Background(), xmlItem("journal.pone.0262049.xml", xml))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if outcome != corpus.Processed {
		t.Errorf("outcome = %v, want processed", outcome)
	}
	if !config.HasMetadata(root, "journal.pone.0262049") || config.IsReviewed(root, "journal.pone.0262049") {
		t.Error("unreviewed article saved in the wrong place")
	}
}

func TestJATS_InvalidXML(t *testing.T) {
	h := &JATS{Table: mustTable(t, publisher.PLOS), Saver: NewSaver(t.TempDir(), persist.New(zap.NewNop()), nil, Options{}, nil)}
	if _, err := h.Handle(context.Background(), xmlItem("journal.pone.1.xml", "<article")); err == nil {
		t.Error("Handle() on broken XML should fail")
	}
}

const (
	articleURL = "https://www.mdpi.com/2073-4441/13/1/1"
	reviewsURL = articleURL + "/review_report"
	reportURL  = reviewsURL + "/file1?type=pdf&v=2"
)

const mdpiReviewPage = `<!DOCTYPE html>
<html><body>
<div class="bib-identity">Water 2021, 13(1), 1; <a href="https://doi.org/10.3390/w13010001">https://doi.org/10.3390/w13010001</a></div>
<div style="display: block;font-size:14px; line-height:30px;"><b>Reviewer 1:</b> <span>Anonymous</span></div>
<div style="display: block;font-size:14px; line-height:30px;"><b>Reviewer 2:</b> <span>Jane Roe</span></div>
<div id="abstract" class="abstract_div">
  <p><span style="font-size: 18px; margin-top:10px;">Round&nbsp;1</span></p>
  <p><b>Reviewer 1 Report</b></p>
  <p>The manuscript is well written.</p>
  <p>Comments: <a href="/2073-4441/13/1/1/review_report/file1?type=pdf&amp;v=2">comments.pdf</a></p>
  <p><b>Author Response</b></p>
  <p>We thank the reviewer.</p>
  <p><b>Reviewer 2 Report</b></p>
  <p>Accept.</p>
</div>
</body></html>`

const mdpiArticlePage = `<!DOCTYPE html>
<html><head>
<meta name="title" content="Rainfall and Rivers">
<meta name="citation_journal_title" content="Water">
<meta name="citation_publication_date" content="2021/1/5">
</head><body>
<div class="bib-identity">Water 2021, 13(1), 1; https://doi.org/10.3390/w13010001</div>
<a href="/2073-4441/13/1/1/review_report">Review Reports</a>
</body></html>`

const embeddedArticlePage = `<!DOCTYPE html>
<html><body>
<div class="bib-identity">Water 2021, 13(1), 1; https://doi.org/10.3390/w13010001</div>
<ul style="margin:0; list-style: none; overflow: auto;">
  <li><a href="/2073-4441/13/1/1/s1?version=1"><b>Peer-Review Report:</b></a><p>(PDF, 120 KiB)</p></li>
  <li><a href="/2073-4441/13/1/1/s2?version=1"><b>Review Report Round 2:</b></a><p>(DOCX, 40 KiB)</p></li>
</ul>
</body></html>`

func newCollector(t *testing.T, pages fakePages) *ReviewCollector {
	t.Helper()
	c, err := NewReviewCollector(mustTable(t, publisher.MDPI), pages, review.PolicyStop, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewReviewCollector() error = %v", err)
	}
	return c
}

func TestReviewCollector_Collect(t *testing.T) {
	c := newCollector(t, fakePages{reviewsURL: mdpiReviewPage})
	revs, err := c.Collect(context.Background(), reviewsURL)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if revs.ShortID != "w13010001" || revs.Embedded {
		t.Errorf("Collect() = %+v", revs)
	}
	var ids []string
	for _, s := range revs.SubArticles {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "w13010001.r11,w13010001.a11,w13010001.r12" {
		t.Errorf("ids = %v", ids)
	}
	if got := revs.SubArticles[0].OriginalArticleURL; got != articleURL {
		t.Errorf("OriginalArticleURL = %q", got)
	}
}

func TestReviewCollector_EmbeddedFallback(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c, err := NewReviewCollector(mustTable(t, publisher.MDPI), fakePages{articleURL: embeddedArticlePage}, review.PolicyStop, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}

	revs, err := c.Collect(context.Background(), reviewsURL)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !revs.Embedded || len(revs.SubArticles) != 1 {
		t.Fatalf("Collect() = %+v, want one embedded sub-article", revs)
	}
	sub := revs.SubArticles[0]
	if sub.ID != "w13010001.r1" || sub.Type != article.TypeAggregated || sub.URL != articleURL+"#review_report" {
		t.Errorf("sub-article = %+v", sub)
	}
	mats := sub.SupplementaryMaterials
	if len(mats) != 2 {
		t.Fatalf("materials = %+v", mats)
	}
	if mats[0].ID != "w13010001.s1" || mats[0].Filename != "w13010001.s1.pdf" ||
		mats[0].OriginalFilename != "Peer-Review Report.pdf" || mats[0].Type != "pdf" {
		t.Errorf("material 0 = %+v", mats[0])
	}
	if mats[1].Filename != "w13010001.s2.docx" {
		t.Errorf("material 1 = %+v", mats[1])
	}
	if logs.FilterMessage("no review subpage, reading reviews embedded in the article page").Len() != 1 {
		t.Error("fallback not logged")
	}
}

func TestReviewCollector_Errors(t *testing.T) {
	tests := []struct {
		name  string
		pages fakePages
	}{
		{"no bib-identity", fakePages{reviewsURL: `<html><body><p>Reviewer 1 Report</p></body></html>`}},
		{"no page at all", fakePages{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector(t, tt.pages)
			if _, err := c.Collect(context.Background(), reviewsURL); err == nil {
				t.Error("Collect() should fail")
			}
		})
	}

	c := newCollector(t, fakePages{reviewsURL: `<html><body><div class="bib-identity">Water</div></body></html>`})
	_, err := c.Collect(context.Background(), reviewsURL)
	if !publisher.IsInvalidSource(err) {
		t.Errorf("error = %v, want InvalidSourceError", err)
	}
}

func TestMDPIArticles_FollowReviews(t *testing.T) {
	root := t.TempDir()
	pages := fakePages{articleURL: mdpiArticlePage, reviewsURL: mdpiReviewPage}
	opener := &fakeOpener{files: map[string][]byte{reportURL: []byte("%PDF")}}
	h := &MDPIArticles{
		Pages:   pages,
		Saver:   NewSaver(root, persist.New(zap.NewNop()), opener, Options{SaveHTML: true}, zap.NewNop()),
		Reviews: newCollector(t, pages),
		Log:     zaptest.NewLogger(t),
	}

	outcome, err := h.Handle(context.Background(), corpus.Item{Name: articleURL, URL: articleURL})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if outcome != corpus.Reviewed {
		t.Errorf("outcome = %v, want reviewed", outcome)
	}
	if !config.IsReviewed(root, "w13010001") {
		t.Fatal("reviewed directory missing")
	}
	subs := config.SubArticlesPath(root, "w13010001")
	for _, name := range []string{"w13010001.r11.json", "w13010001.r11.txt", "w13010001.a11.txt", "w13010001.r12.json", "w13010001.r11.s1.pdf"} {
		if !exists(filepath.Join(subs, name)) {
			t.Errorf("missing %s", name)
		}
	}
	if !strings.Contains(readFile(t, config.MetadataPath(root, "w13010001")), `"id": "w13010001.r11"`) {
		t.Error("metadata does not list the sub-articles")
	}
	if !exists(filepath.Join(config.ReviewedArticlePath(root, "w13010001"), "w13010001.html")) {
		t.Error("review page HTML not saved")
	}
}

func TestMDPIArticles_NoFollow(t *testing.T) {
	root := t.TempDir()
	h := &MDPIArticles{
		Pages: fakePages{articleURL: mdpiArticlePage},
		Saver: NewSaver(root, persist.New(zap.NewNop()), nil, Options{}, nil),
	}
	outcome, err := h.Handle(context.Background(), corpus.Item{URL: articleURL})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if outcome != corpus.Reviewed {
		t.Errorf("outcome = %v, want reviewed", outcome)
	}
	if !config.IsReviewed(root, "w13010001") || exists(config.SubArticlesPath(root, "w13010001")) {
		t.Error("without a collector only the metadata is saved")
	}
}

func TestMDPIArticles_Unregistered(t *testing.T) {
	page := strings.Replace(mdpiArticlePage, "w13010001</div>", "w13010001 (registering DOI)</div>", 1)
	for _, include := range []bool{false, true} {
		root := t.TempDir()
		h := &MDPIArticles{
			Pages:               fakePages{articleURL: page},
			Saver:               NewSaver(root, persist.New(zap.NewNop()), nil, Options{}, nil),
			IncludeUnregistered: include,
		}
		outcome, err := h.Handle(context.Background(), corpus.Item{URL: articleURL})
		if err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
		if include {
			if outcome == corpus.Excluded || !config.HasMetadata(root, "w13010001") {
				t.Errorf("include: outcome = %v, want saved", outcome)
			}
			continue
		}
		if outcome != corpus.Excluded {
			t.Errorf("outcome = %v, want excluded", outcome)
		}
		if config.HasMetadata(root, "w13010001") {
			t.Error("excluded article was saved")
		}
	}
}

func TestMDPIReviews_Handle(t *testing.T) {
	root := t.TempDir()
	pages := fakePages{reviewsURL: mdpiReviewPage}
	h := &MDPIReviews{
		Reviews: newCollector(t, pages),
		Saver:   NewSaver(root, persist.New(zap.NewNop()), nil, Options{}, zap.NewNop()),
		Log:     zaptest.NewLogger(t),
	}
	outcome, err := h.Handle(context.Background(), corpus.Item{URL: reviewsURL, ShortID: "w13010001"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if outcome != corpus.Reviewed {
		t.Errorf("outcome = %v, want reviewed", outcome)
	}
	subs := config.SubArticlesPath(root, "w13010001")
	if !exists(filepath.Join(subs, "w13010001.r12.json")) {
		t.Error("sub-articles not saved")
	}
	if exists(config.MetadataPath(root, "w13010001")) {
		t.Error("review harvest should not write metadata")
	}
}

func TestMDPIReviews_MismatchedPage(t *testing.T) {
	root := t.TempDir()
	core, logs := observer.New(zap.WarnLevel)
	h := &MDPIReviews{
		Reviews: newCollector(t, fakePages{reviewsURL: mdpiReviewPage}),
		Saver:   NewSaver(root, persist.New(zap.NewNop()), nil, Options{}, nil),
		Log:     zap.New(core),
	}
	if _, err := h.Handle(context.Background(), corpus.Item{URL: reviewsURL, ShortID: "w99"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if logs.FilterMessage("review page belongs to another article").Len() != 1 {
		t.Error("mismatch not logged")
	}
	if !exists(filepath.Join(config.SubArticlesPath(root, "w99"), "w13010001.r11.json")) {
		t.Error("sub-articles not saved under the listed article")
	}
}

func TestMDPIReviews_NoReports(t *testing.T) {
	root := t.TempDir()
	page := `<html><body><div class="bib-identity">https://doi.org/10.3390/w13010001</div></body></html>`
	h := &MDPIReviews{
		Reviews: newCollector(t, fakePages{articleURL: page}),
		Saver:   NewSaver(root, persist.New(zap.NewNop()), nil, Options{}, nil),
	}
	outcome, err := h.Handle(context.Background(), corpus.Item{URL: articleURL + "#review_report"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if outcome != corpus.Processed {
		t.Errorf("outcome = %v, want processed", outcome)
	}
	if exists(config.SubArticlesPath(root, "w13010001")) {
		t.Error("nothing should be written")
	}
}
