package adb

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const listingPageHtml = `
<html>
<body>
<div class="adb-main">
	<div class="list-stats">Results 1-20 of 12,504</div>

	<div class="item linked">
		<div class="item-title"><a href="/projects/59364-001/main">Climate Resilient Finance Sector Development Program</a></div>
		<div class="item-summary">59364-001; Thailand; Finance</div>
		<span class="Active">Active</span>
		<time>2024</time>
	</div>

	<div class="item linked">
		<div class="item-title"><a href="https://www.adb.org/projects/58012-002/main">Urban Water Supply Project</a></div>
		<div class="item-summary">58012-002; Nepal</div>
		<span class="Proposed">Proposed</span>
	</div>

	<div class="item linked">
		<div class="item-summary">57777-001; Fiji; Energy</div>
		<span class="Approved">Approved</span>
	</div>
</div>
</body>
</html>`

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestParseListingPage(t *testing.T) {
	base, err := url.Parse(DefaultBaseUrl)
	require.NoError(t, err)

	doc := mustDoc(t, listingPageHtml)
	projects := ParseListingPage(doc, base)

	// the third item has no title link and must be skipped
	require.Len(t, projects, 2)

	first := projects[0]
	require.Equal(t, "59364-001", first.ProjectId)
	require.Equal(t, "Climate Resilient Finance Sector Development Program", first.Title)
	require.Equal(t, "https://www.adb.org/projects/59364-001/main", first.Url)
	require.Equal(t, "Thailand", first.Country)
	require.Equal(t, "Finance", first.Sector)
	require.Equal(t, "Active", first.Status)
	require.Equal(t, "2024", first.ApprovalYear)
	require.NotEmpty(t, first.ScrapedAt)

	second := projects[1]
	require.Equal(t, "58012-002", second.ProjectId)
	require.Equal(t, "Nepal", second.Country)
	require.Empty(t, second.Sector)
	require.Equal(t, "Proposed", second.Status)
	require.Empty(t, second.ApprovalYear)
}

func TestParseListingPageEmpty(t *testing.T) {
	doc := mustDoc(t, `<html><body><div class="adb-main"></div></body></html>`)
	projects := ParseListingPage(doc, nil)
	require.Empty(t, projects)
}

func TestTotalProjects(t *testing.T) {
	doc := mustDoc(t, listingPageHtml)
	require.Equal(t, 12504, TotalProjects(doc))

	doc = mustDoc(t, `<html><body><div class="list-stats">Results</div></body></html>`)
	require.Equal(t, 0, TotalProjects(doc))

	doc = mustDoc(t, `<html><body></body></html>`)
	require.Equal(t, 0, TotalProjects(doc))
}

func TestProjectIdFromUrl(t *testing.T) {
	require.Equal(t, "59364-001", ProjectIdFromUrl("https://www.adb.org/projects/59364-001/main"))
	require.Equal(t, "59364-001", ProjectIdFromUrl("https://www.adb.org/projects/59364-001/main/"))
	require.Equal(t, "projects", ProjectIdFromUrl("https://www.adb.org/projects/overview"))
	require.Empty(t, ProjectIdFromUrl("nopath"))
}
