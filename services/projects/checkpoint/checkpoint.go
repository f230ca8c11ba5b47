// Package checkpoint persists crawl progress so interrupted runs can
// resume without refetching finished pages or items.
package checkpoint

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FailedUrl records one permanently failed fetch. Entries are never
// deduplicated; repeat failures of the same URL each append.
type FailedUrl struct {
	Url       string `json:"url"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Statistics carries the run counters shown in the end-of-run summary.
type Statistics struct {
	ListingPagesScraped int `json:"listing_pages_scraped"`
	DetailPagesScraped  int `json:"detail_pages_scraped"`
	ErrorsEncountered   int `json:"errors_encountered"`
}

// State is the on-disk checkpoint document. The field set and names
// are a compatibility contract with existing checkpoint files, so
// they change only deliberately.
type State struct {
	LastUpdated          *string     `json:"last_updated"`
	LastPageScraped      int         `json:"last_page_scraped"`
	TotalProjectsScraped int         `json:"total_projects_scraped"`
	ScrapedProjectIds    []string    `json:"scraped_project_ids"`
	FailedUrls           []FailedUrl `json:"failed_urls"`
	Statistics           Statistics  `json:"statistics"`
}

func defaultState() State {
	return State{
		LastPageScraped:   -1,
		ScrapedProjectIds: []string{},
		FailedUrls:        []FailedUrl{},
	}
}

// Store is an in-memory checkpoint bound to one file. It is not safe
// for concurrent use; the orchestrator owns it for the whole run.
type Store struct {
	path    string
	state   State
	scraped map[string]struct{}
}

// Load opens the checkpoint at path, falling back to a fresh default
// state when the file is absent or unreadable. A corrupt file is
// logged and replaced rather than aborting the run.
func Load(path string) *Store {
	s := &Store{path: path, state: defaultState()}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no checkpoint found, starting fresh", "path", path)
	} else if err != nil {
		slog.Warn("could not read checkpoint, starting fresh", "path", path, "err", err)
	} else if err := json.Unmarshal(contents, &s.state); err != nil {
		slog.Warn("corrupt checkpoint, starting fresh", "path", path, "err", err)
		s.state = defaultState()
	} else {
		slog.Info("resuming from checkpoint",
			"path", path,
			"last_page", s.state.LastPageScraped,
			"projects_scraped", s.state.TotalProjectsScraped,
		)
	}

	if s.state.ScrapedProjectIds == nil {
		s.state.ScrapedProjectIds = []string{}
	}
	if s.state.FailedUrls == nil {
		s.state.FailedUrls = []FailedUrl{}
	}

	s.scraped = make(map[string]struct{}, len(s.state.ScrapedProjectIds))
	for _, id := range s.state.ScrapedProjectIds {
		s.scraped[id] = struct{}{}
	}
	return s
}

// Path returns the file this store persists to.
func (s *Store) Path() string {
	return s.path
}

// RecordPageProgress marks a zero-indexed listing page as finished.
func (s *Store) RecordPageProgress(page int) {
	s.state.LastPageScraped = page
	s.state.Statistics.ListingPagesScraped = page + 1
}

// RecordItemScraped marks a project as done. Recording the same id
// again is a no-op, so replayed items never inflate the totals.
func (s *Store) RecordItemScraped(projectId string) {
	if projectId == "" {
		return
	}
	if _, ok := s.scraped[projectId]; ok {
		return
	}
	s.scraped[projectId] = struct{}{}
	s.state.ScrapedProjectIds = append(s.state.ScrapedProjectIds, projectId)
	s.state.TotalProjectsScraped = len(s.state.ScrapedProjectIds)
}

// IsScraped reports whether a project id was already recorded.
func (s *Store) IsScraped(projectId string) bool {
	_, ok := s.scraped[projectId]
	return ok
}

// RecordFailedFetch appends a failed URL with the failure reason.
// Repeat failures of the same URL each append a fresh entry.
func (s *Store) RecordFailedFetch(url string, reason string) {
	s.state.FailedUrls = append(s.state.FailedUrls, FailedUrl{
		Url:       url,
		Error:     reason,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// IncrementDetailPages bumps the detail page counter.
func (s *Store) IncrementDetailPages() {
	s.state.Statistics.DetailPagesScraped++
}

// IncrementErrors bumps the error counter.
func (s *Store) IncrementErrors() {
	s.state.Statistics.ErrorsEncountered++
}

// ResumePage is the next listing page to fetch: one past the last
// finished page, or 0 on a fresh checkpoint.
func (s *Store) ResumePage() int {
	return s.state.LastPageScraped + 1
}

// Stats returns a copy of the run counters.
func (s *Store) Stats() Statistics {
	return s.state.Statistics
}

// FailedUrls returns the recorded failures.
func (s *Store) FailedUrls() []FailedUrl {
	return s.state.FailedUrls
}

// TotalScraped returns the number of distinct recorded project ids.
func (s *Store) TotalScraped() int {
	return s.state.TotalProjectsScraped
}

// Persist writes the checkpoint to disk via a temp file rename so a
// crash mid-write never leaves a truncated checkpoint. Failures are
// logged, not returned; losing a checkpoint write must not kill the
// crawl that produced the data.
func (s *Store) Persist() {
	now := time.Now().Format(time.RFC3339)
	s.state.LastUpdated = &now

	contents, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		slog.Error("could not encode checkpoint", "err", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Error("could not create checkpoint directory", "path", s.path, "err", err)
		return
	}
	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		slog.Error("could not write checkpoint", "path", tmp, "err", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Error("could not replace checkpoint", "path", s.path, "err", err)
		return
	}
	slog.Debug("checkpoint saved", "path", s.path, "projects", s.state.TotalProjectsScraped)
}

// Reset discards all recorded progress and persists the empty state.
func (s *Store) Reset() {
	s.state = defaultState()
	s.scraped = map[string]struct{}{}
	s.Persist()
	slog.Info("checkpoint reset", "path", s.path)
}
