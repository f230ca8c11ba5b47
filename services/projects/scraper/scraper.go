// Package scraper drives the crawl: it wires the fetch session,
// extractors, checkpoint store, and output writer into the listing
// and detail pipelines.
package scraper

import (
	"context"
	"log/slog"
	"strings"

	"adbprojects/lib/scrapers/adb"
	"adbprojects/services/projects/checkpoint"
	"adbprojects/services/projects/output"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/projects/scraper")

// DefaultEndPage bounds a listing crawl when no explicit end page is
// given; the catalog is around this many pages deep.
const DefaultEndPage = 625

// Options holds the per-run crawl policy. Zero cadences fall back to
// the standard ones.
type Options struct {
	StartPage int
	// EndPage is inclusive. Negative means "use DefaultEndPage".
	EndPage int
	// Resume starts the listing crawl from the checkpoint's resume
	// page when that is further along than StartPage.
	Resume bool
	// Force rescrapes detail pages whose ids the checkpoint already
	// holds.
	Force bool

	// FlushEvery is the detail-record batch size between output
	// flushes.
	FlushEvery int
	// PersistEveryPages and PersistEveryItems set the checkpoint
	// write cadence for the two pipelines.
	PersistEveryPages int
	PersistEveryItems int
}

func (o Options) withDefaults() Options {
	if o.EndPage < 0 {
		o.EndPage = DefaultEndPage
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 5
	}
	if o.PersistEveryPages <= 0 {
		o.PersistEveryPages = 10
	}
	if o.PersistEveryItems <= 0 {
		o.PersistEveryItems = 10
	}
	return o
}

// Scraper owns one session and one checkpoint for the duration of a
// run. It is strictly sequential; there is never more than one fetch
// in flight.
type Scraper struct {
	session    *adb.Session
	checkpoint *checkpoint.Store
	opts       Options
}

func New(session *adb.Session, cp *checkpoint.Store, opts Options) *Scraper {
	return &Scraper{
		session:    session,
		checkpoint: cp,
		opts:       opts.withDefaults(),
	}
}

// ScrapeListings crawls catalog pages in increasing order and returns
// every listing record collected. Failed pages are recorded in the
// checkpoint and skipped; only cancellation ends the crawl early, and
// even then progress is persisted and the partial result returned.
func (s *Scraper) ScrapeListings(ctx context.Context) ([]adb.ProjectListing, error) {
	ctx, span := tracer.Start(ctx, "scraper:ScrapeListings")
	defer span.End()

	startPage := s.opts.StartPage
	if s.opts.Resume {
		if resume := s.checkpoint.ResumePage(); resume > startPage {
			startPage = resume
		}
		slog.InfoContext(ctx, "resuming listing crawl", "start_page", startPage)
	}
	endPage := s.opts.EndPage
	span.SetAttributes(
		attribute.Int("start_page", startPage),
		attribute.Int("end_page", endPage),
	)
	slog.InfoContext(ctx, "scraping listing pages", "start_page", startPage, "end_page", endPage)

	var listings []adb.ProjectListing
	loggedTotal := false

	for page := startPage; page <= endPage; page++ {
		if ctx.Err() != nil {
			s.checkpoint.Persist()
			return listings, ctx.Err()
		}

		pageUrl := s.session.ListingPageUrl(page)
		body, err := s.session.Fetch(ctx, pageUrl)
		if err != nil {
			if ctx.Err() != nil {
				s.checkpoint.Persist()
				return listings, ctx.Err()
			}
			slog.ErrorContext(ctx, "listing page failed", "page", page, "err", err)
			s.checkpoint.RecordFailedFetch(pageUrl, err.Error())
			s.checkpoint.IncrementErrors()
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			slog.ErrorContext(ctx, "listing page unparseable", "page", page, "err", err)
			s.checkpoint.RecordFailedFetch(pageUrl, err.Error())
			s.checkpoint.IncrementErrors()
			continue
		}

		if !loggedTotal {
			if total := adb.TotalProjects(doc); total > 0 {
				slog.InfoContext(ctx, "catalog size reported", "total_projects", total)
			}
			loggedTotal = true
		}

		projects := adb.ParseListingPage(doc, s.session.BaseUrl)
		if len(projects) == 0 {
			slog.WarnContext(ctx, "no projects found on page", "page", page)
			continue
		}

		listings = append(listings, projects...)
		s.checkpoint.RecordPageProgress(page)
		for _, project := range projects {
			s.checkpoint.RecordItemScraped(project.ProjectId)
		}
		if (page+1)%s.opts.PersistEveryPages == 0 {
			s.checkpoint.Persist()
			slog.DebugContext(ctx, "checkpoint saved", "page", page)
		}
	}

	s.checkpoint.Persist()
	span.SetAttributes(attribute.Int("listings", len(listings)))
	return listings, nil
}

// ScrapeDetails fetches and extracts the given detail pages in order,
// flushing completed records to the output target in small batches so
// an aborted run keeps everything scraped so far. Already-checkpointed
// ids are skipped unless the run is forced.
func (s *Scraper) ScrapeDetails(ctx context.Context, urls []string, target output.Target) ([]adb.ProjectDetail, error) {
	ctx, span := tracer.Start(ctx, "scraper:ScrapeDetails", trace.WithAttributes(
		attribute.Int("urls", len(urls)),
	))
	defer span.End()

	slog.InfoContext(ctx, "scraping detail pages", "count", len(urls))

	var details []adb.ProjectDetail
	var unflushed []adb.ProjectDetail

	finish := func() {
		s.flush(ctx, target, unflushed)
		unflushed = nil
		s.checkpoint.Persist()
	}

	for _, pageUrl := range urls {
		if ctx.Err() != nil {
			finish()
			return details, ctx.Err()
		}

		projectId := adb.ProjectIdFromUrl(pageUrl)
		if projectId != "" && s.checkpoint.IsScraped(projectId) && !s.opts.Force {
			slog.DebugContext(ctx, "skipping already scraped project", "project_id", projectId)
			continue
		}

		body, err := s.session.Fetch(ctx, pageUrl)
		if err != nil {
			if ctx.Err() != nil {
				finish()
				return details, ctx.Err()
			}
			slog.ErrorContext(ctx, "detail page failed", "url", pageUrl, "err", err)
			s.checkpoint.RecordFailedFetch(pageUrl, err.Error())
			s.checkpoint.IncrementErrors()
			continue
		}

		detail := s.parseDetail(ctx, body, pageUrl)
		if detail == nil {
			s.checkpoint.RecordFailedFetch(pageUrl, "parsing failed")
			s.checkpoint.IncrementErrors()
			continue
		}

		details = append(details, *detail)
		unflushed = append(unflushed, *detail)
		s.checkpoint.IncrementDetailPages()
		if projectId != "" {
			s.checkpoint.RecordItemScraped(projectId)
		} else {
			s.checkpoint.RecordItemScraped(detail.ProjectId)
		}

		if len(unflushed) >= s.opts.FlushEvery {
			s.flush(ctx, target, unflushed)
			unflushed = nil
		}
		if len(details)%s.opts.PersistEveryItems == 0 {
			s.checkpoint.Persist()
		}
	}

	finish()
	span.SetAttributes(attribute.Int("details", len(details)))
	return details, nil
}

func (s *Scraper) parseDetail(ctx context.Context, body, pageUrl string) *adb.ProjectDetail {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		slog.ErrorContext(ctx, "detail page unparseable", "url", pageUrl, "err", err)
		return nil
	}
	detail, err := adb.ParseDetailPage(doc, pageUrl)
	if err != nil {
		slog.ErrorContext(ctx, "detail extraction failed", "url", pageUrl, "err", err)
		return nil
	}
	return detail
}

// flush writes buffered records out. Output failures are logged,
// never propagated; a bad disk must not end the crawl.
func (s *Scraper) flush(ctx context.Context, target output.Target, records []adb.ProjectDetail) {
	if len(records) == 0 {
		return
	}
	if err := output.Flush(target, records); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "output flush failed")
		slog.ErrorContext(ctx, "could not flush output", "err", err)
		return
	}
	slog.DebugContext(ctx, "flushed detail records", "count", len(records))
}
