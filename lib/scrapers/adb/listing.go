package adb

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"adbprojects/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// statusBadgeSelector matches the status badge span on listing items.
var statusBadgeSelector = strings.Join([]string{
	"span.Proposed",
	"span.Active",
	"span.Approved",
	"span.Closed",
	"span.Completed",
}, ", ")

// ParseListingPage extracts every valid project entry from a catalog
// page. Malformed items are skipped with a logged reason; the parse
// as a whole never fails.
func ParseListingPage(doc *goquery.Document, baseUrl *url.URL) []ProjectListing {
	var projects []ProjectListing

	items := doc.Find("div.item.linked")
	slog.Debug("found project items on page", "count", items.Length())

	items.Each(func(_ int, item *goquery.Selection) {
		titleLink := item.Find("div.item-title a").First()
		if titleLink.Length() == 0 {
			slog.Warn("no title link found, skipping item")
			return
		}

		title := htmlutil.SelectionText(titleLink)
		href := titleLink.AttrOr("href", "")
		absUrl := resolveUrl(baseUrl, href)

		listing := ProjectListing{
			Title:     title,
			Url:       absUrl,
			ScrapedAt: nowTimestamp(),
		}

		// summary line: "<id>; <country>; <sector>", trailing parts optional
		summary := htmlutil.SelectionText(item.Find("div.item-summary").First())
		parts := strings.Split(summary, ";")
		if len(parts) >= 1 {
			listing.ProjectId = strings.TrimSpace(parts[0])
		}
		if len(parts) >= 2 {
			listing.Country = strings.TrimSpace(parts[1])
		}
		if len(parts) >= 3 {
			listing.Sector = strings.TrimSpace(parts[2])
		}

		listing.Status = htmlutil.SelectionText(item.Find(statusBadgeSelector).First())
		listing.ApprovalYear = htmlutil.SelectionText(item.Find("time").First())

		if missing := ValidateListing(listing); len(missing) > 0 {
			slog.Warn("invalid project listing, dropping", "url", absUrl, "missing", strings.Join(missing, ","))
			return
		}
		projects = append(projects, listing)
	})

	return projects
}

// TotalProjects parses the "Results X-Y of N" summary into N. This is
// informational only; pagination bounds never derive from it. Returns
// 0 when absent or unparseable.
func TotalProjects(doc *goquery.Document) int {
	stats := htmlutil.SelectionText(doc.Find("div.list-stats").First())
	idx := strings.LastIndex(stats, "of")
	if idx < 0 {
		return 0
	}

	raw := strings.TrimSpace(stats[idx+len("of"):])
	raw = strings.ReplaceAll(raw, ",", "")
	total, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return total
}

func resolveUrl(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// ProjectIdFromUrl derives the project identifier embedded in a
// detail-page URL (the second-to-last path segment, e.g.
// ".../projects/59364-001/main"). Returns "" when the URL has no such
// segment.
func ProjectIdFromUrl(projectUrl string) string {
	trimmed := strings.TrimSuffix(projectUrl, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
