// Package fetch retrieves publisher pages and review attachments politely: pages
// through a rate-limited colly collector, attachments as rate-limited streams.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent identifies the harvester to publishers.
	DefaultUserAgent = "revharvest/1.0 (+https://github.com/matsen/revharvest)"

	// DefaultTimeout bounds a single page or attachment request.
	DefaultTimeout = 60 * time.Second

	// DefaultDelay and DefaultRandomDelay space out page requests per domain.
	DefaultDelay       = 1 * time.Second
	DefaultRandomDelay = 2 * time.Second

	// DefaultDownloadRate is the attachment request rate, per second.
	DefaultDownloadRate = 2.0
)

// Options configure fetchers.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	Delay        time.Duration
	RandomDelay  time.Duration
	Parallelism  int
	DownloadRate float64
}

// DefaultOptions returns the politeness settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		UserAgent:    DefaultUserAgent,
		Timeout:      DefaultTimeout,
		Delay:        DefaultDelay,
		RandomDelay:  DefaultRandomDelay,
		Parallelism:  2,
		DownloadRate: DefaultDownloadRate,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.DownloadRate <= 0 {
		o.DownloadRate = d.DownloadRate
	}
	return o
}

// Page is a fetched HTML page.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher retrieves one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Some publishers answer blocked crawlers with a 200 error page.
var forbiddenTitle = regexp.MustCompile(`(?is)<title>\s*403\s+Forbidden`)

// Fetcher retrieves pages through a shared colly collector, so limit rules apply
// across all concurrent fetches.
type Fetcher struct {
	base *colly.Collector
	log  *zap.Logger
}

var _ PageFetcher = (*Fetcher)(nil)

// New returns a Fetcher with a per-domain limit rule built from opts.
func New(opts Options, log *zap.Logger) (*Fetcher, error) {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(opts.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       opts.Delay,
		RandomDelay: opts.RandomDelay,
		Parallelism: opts.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configuring limit rule: %w", err)
	}
	return &Fetcher{base: c, log: log}, nil
}

// Fetch retrieves url. A non-2xx status, or an error page titled "403 Forbidden",
// is a *FetchError carrying the status code.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := f.base.Clone()
	page := &Page{URL: url}
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.Body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &FetchError{URL: url, StatusCode: status, Err: err}
	})

	start := time.Now()
	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = &FetchError{URL: url, Err: err}
	}
	log := f.log.With(zap.String("url", url), zap.Duration("elapsed", time.Since(start)))

	if fetchErr == nil && forbiddenTitle.Match(page.Body) {
		fetchErr = &FetchError{URL: url, StatusCode: http.StatusForbidden, Err: fmt.Errorf("forbidden error page")}
	}
	if fetchErr != nil {
		if IsForbidden(fetchErr) {
			log.Warn("access forbidden")
		} else {
			log.Debug("fetch failed", zap.Error(fetchErr))
		}
		return nil, fetchErr
	}
	log.Debug("fetched page", zap.Int("status", page.StatusCode), zap.Int("bytes", len(page.Body)))
	return page, nil
}

// Opener streams one attachment.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Downloader streams attachments at a bounded request rate.
type Downloader struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *zap.Logger
}

var _ Opener = (*Downloader)(nil)

// NewDownloader returns a Downloader configured from opts.
func NewDownloader(opts Options, log *zap.Logger) *Downloader {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Downloader{
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(opts.DownloadRate), 1),
		userAgent: opts.UserAgent,
		log:       log,
	}
}

// Open starts downloading url. The caller closes the returned body.
func (d *Downloader) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if strings.Contains(url, "email-protection") {
		d.log.Error("refusing to download email-protection link", zap.String("url", url))
		return nil, &FetchError{URL: url, Err: ErrEmailProtected}
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		ferr := &FetchError{URL: url, StatusCode: resp.StatusCode}
		if ferr.Forbidden() {
			d.log.Warn("access forbidden", zap.String("url", url))
		}
		return nil, ferr
	}
	return resp.Body, nil
}
