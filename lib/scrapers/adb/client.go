package adb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"adbprojects/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseUrl = "https://www.adb.org"

// renderMarker is the container present once a catalog page has
// actually rendered; a response without it is treated as not loaded.
const renderMarker = `adb-main`

var (
	// ErrNotRendered means the response never contained the render marker.
	ErrNotRendered = errors.New("page did not render main content")
	// ErrChallengeUnresolved means the anti-bot interstitial was still
	// present after the extra challenge-wait round.
	ErrChallengeUnresolved = errors.New("challenge page did not clear")
)

// FetchError is the terminal failure returned once the attempt budget
// is exhausted. The orchestrator records it, it is never fatal.
type FetchError struct {
	Url      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Url, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SessionOptions configures one scraping session. Zero values fall
// back to the defaults used against the live site; tests shrink the
// delays to keep runtimes sane.
type SessionOptions struct {
	BaseUrl string

	MaxAttempts int

	// per-request budget for the page to come back rendered
	RenderTimeout time.Duration
	// pause before the single challenge re-request, and its budget
	ChallengeWait    time.Duration
	ChallengeTimeout time.Duration
	// uniform range slept after every successful fetch
	HumanDelayMin time.Duration
	HumanDelayMax time.Duration
	// uniform range slept between failed attempts
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = 15 * time.Second
	}
	if o.ChallengeWait <= 0 {
		o.ChallengeWait = 5 * time.Second
	}
	if o.ChallengeTimeout <= 0 {
		o.ChallengeTimeout = 20 * time.Second
	}
	if o.HumanDelayMin <= 0 {
		o.HumanDelayMin = 1500 * time.Millisecond
	}
	if o.HumanDelayMax <= 0 {
		o.HumanDelayMax = 3 * time.Second
	}
	if o.RetryBackoffMin <= 0 {
		o.RetryBackoffMin = 3 * time.Second
	}
	if o.RetryBackoffMax <= 0 {
		o.RetryBackoffMax = 5 * time.Second
	}
	return o
}

// Session is the single stateful browsing context for a run. It is
// not safe for concurrent fetches and is owned by exactly one
// orchestrator until Close.
type Session struct {
	BaseUrl *url.URL
	Http    *resty.Client
	opts    SessionOptions
}

func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	opts = opts.withDefaults()

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	return &Session{
		BaseUrl: baseUrl,
		Http:    client,
		opts:    opts,
	}, nil
}

// Close releases the session's connections. Safe on all exit paths.
func (s *Session) Close() {
	if s != nil && s.Http != nil {
		s.Http.GetClient().CloseIdleConnections()
	}
}

// ListingPageUrl builds the catalog page URL for a zero-indexed page.
func (s *Session) ListingPageUrl(page int) string {
	return fmt.Sprintf("%s/projects?page=%d", strings.TrimSuffix(s.BaseUrl.String(), "/"), page)
}

// IsChallenge reports whether a document is the anti-bot interstitial
// rather than real content.
func IsChallenge(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "cloudflare") && strings.Contains(lower, "checking your browser")
}

func isRendered(body string) bool {
	return strings.Contains(body, renderMarker)
}

// Fetch retrieves a page, handling challenge interstitials and
// transient failures inside a bounded attempt budget. It returns the
// document text or a *FetchError; the only other error is the
// context's on cancellation.
func (s *Session) Fetch(ctx context.Context, pageUrl string) (string, error) {
	ctx, span := tracer.Start(ctx, "session:Fetch", trace.WithAttributes(
		attribute.String("url", pageUrl),
	))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		slog.DebugContext(ctx, "fetching page", "url", pageUrl, "attempt", attempt, "max_attempts", s.opts.MaxAttempts)

		body, err := s.attempt(ctx, pageUrl)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			if err := randomSleep(ctx, s.opts.HumanDelayMin, s.opts.HumanDelayMax); err != nil {
				return "", err
			}
			return body, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		slog.WarnContext(ctx, "fetch attempt failed", "url", pageUrl, "attempt", attempt, "err", err)
		if attempt < s.opts.MaxAttempts {
			if err := randomSleep(ctx, s.opts.RetryBackoffMin, s.opts.RetryBackoffMax); err != nil {
				return "", err
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "attempt budget exhausted")
	return "", &FetchError{Url: pageUrl, Attempts: s.opts.MaxAttempts, Err: lastErr}
}

// attempt performs one fetch round: request, render check, and at
// most one challenge-wait re-request. The challenge round is never
// itself retried; a still-present interstitial fails the attempt.
func (s *Session) attempt(ctx context.Context, pageUrl string) (string, error) {
	body, err := s.request(ctx, pageUrl, s.opts.RenderTimeout)
	if err != nil {
		return "", err
	}

	if IsChallenge(body) {
		slog.WarnContext(ctx, "challenge detected, waiting", "url", pageUrl)
		if err := sleepCtx(ctx, s.opts.ChallengeWait); err != nil {
			return "", err
		}
		body, err = s.request(ctx, pageUrl, s.opts.ChallengeTimeout)
		if err != nil {
			return "", err
		}
		if IsChallenge(body) {
			return "", ErrChallengeUnresolved
		}
	}

	if !isRendered(body) {
		return "", ErrNotRendered
	}
	return body, nil
}

func (s *Session) request(ctx context.Context, pageUrl string, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.Http.R().
		SetContext(reqCtx).
		Get(pageUrl)
	if err != nil {
		return "", err
	}
	if res.StatusCode() >= 400 {
		return "", fmt.Errorf("unexpected status %s", res.Status())
	}
	return string(res.Body()), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// randomSleep pauses a uniformly random duration inside [min, max],
// which throttles the request rate to look less mechanical.
func randomSleep(ctx context.Context, min, max time.Duration) error {
	ms, err := random.IntRange(int(min.Milliseconds()), int(max.Milliseconds())+1)
	if err != nil {
		ms = int(min.Milliseconds())
	}
	return sleepCtx(ctx, time.Duration(ms)*time.Millisecond)
}
