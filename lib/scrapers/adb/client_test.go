package adb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"adbprojects/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const renderedPage = `<html><body><div class="adb-main">content</div></body></html>`
const challengePage = `<html><body>Cloudflare is checking your browser before accessing the site.</body></html>`

func testSessionOptions(baseUrl string) SessionOptions {
	return SessionOptions{
		BaseUrl:          baseUrl,
		MaxAttempts:      3,
		RenderTimeout:    2 * time.Second,
		ChallengeWait:    time.Millisecond,
		ChallengeTimeout: 2 * time.Second,
		HumanDelayMin:    time.Millisecond,
		HumanDelayMax:    2 * time.Millisecond,
		RetryBackoffMin:  time.Millisecond,
		RetryBackoffMax:  2 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, handler http.Handler) *Session {
	t.Helper()
	telemetry.SetupForTesting(t, "scrapers/adb")

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	session, err := NewSession(context.Background(), testSessionOptions(server.URL))
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestFetchSuccess(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(renderedPage))
	}))

	body, err := session.Fetch(context.Background(), session.ListingPageUrl(0))
	require.NoError(t, err)
	require.Contains(t, body, "adb-main")
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(renderedPage))
	}))

	body, err := session.Fetch(context.Background(), session.ListingPageUrl(0))
	require.NoError(t, err)
	require.Contains(t, body, "adb-main")
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchClearsChallenge(t *testing.T) {
	var calls atomic.Int32
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(challengePage))
			return
		}
		w.Write([]byte(renderedPage))
	}))

	body, err := session.Fetch(context.Background(), session.ListingPageUrl(0))
	require.NoError(t, err)
	require.Contains(t, body, "adb-main")
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	url := session.ListingPageUrl(0)
	_, err := session.Fetch(context.Background(), url)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, url, fetchErr.Url)
	require.Equal(t, 3, fetchErr.Attempts)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchUnrenderedPage(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>blank shell</body></html>`))
	}))

	_, err := session.Fetch(context.Background(), session.ListingPageUrl(0))
	require.ErrorIs(t, err, ErrNotRendered)
}

func TestFetchCancelledContext(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(renderedPage))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Fetch(ctx, session.ListingPageUrl(0))
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsChallenge(t *testing.T) {
	require.True(t, IsChallenge(challengePage))
	require.True(t, IsChallenge("CLOUDFLARE ... Checking Your Browser"))
	require.False(t, IsChallenge(renderedPage))
	require.False(t, IsChallenge("cloudflare mentioned in an article"))
}

func TestListingPageUrl(t *testing.T) {
	session, err := NewSession(context.Background(), SessionOptions{})
	require.NoError(t, err)
	defer session.Close()
	require.Equal(t, "https://www.adb.org/projects?page=0", session.ListingPageUrl(0))
	require.Equal(t, "https://www.adb.org/projects?page=41", session.ListingPageUrl(41))
}
