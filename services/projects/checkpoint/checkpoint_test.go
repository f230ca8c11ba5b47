package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempCheckpointPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "scraper_checkpoint.json")
}

func TestLoadFreshState(t *testing.T) {
	s := Load(tempCheckpointPath(t))

	require.Equal(t, -1, s.state.LastPageScraped)
	require.Equal(t, 0, s.ResumePage())
	require.Equal(t, 0, s.TotalScraped())
	require.Empty(t, s.FailedUrls())
}

func TestLoadCorruptFile(t *testing.T) {
	path := tempCheckpointPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := Load(path)
	require.Equal(t, -1, s.state.LastPageScraped)
	require.Equal(t, 0, s.TotalScraped())
}

func TestRecordItemScrapedIdempotent(t *testing.T) {
	s := Load(tempCheckpointPath(t))

	s.RecordItemScraped("59364-001")
	s.RecordItemScraped("59364-001")
	s.RecordItemScraped("58012-002")
	s.RecordItemScraped("")

	require.Equal(t, 2, s.TotalScraped())
	require.True(t, s.IsScraped("59364-001"))
	require.True(t, s.IsScraped("58012-002"))
	require.False(t, s.IsScraped("57777-001"))
	require.Equal(t, []string{"59364-001", "58012-002"}, s.state.ScrapedProjectIds)
}

func TestResumePage(t *testing.T) {
	s := Load(tempCheckpointPath(t))

	s.RecordPageProgress(5)
	require.Equal(t, 6, s.ResumePage())
	require.Equal(t, 6, s.Stats().ListingPagesScraped)
}

func TestPersistAndReload(t *testing.T) {
	path := tempCheckpointPath(t)

	s := Load(path)
	s.RecordPageProgress(9)
	s.RecordItemScraped("59364-001")
	s.RecordFailedFetch("https://www.adb.org/projects/broken/main", "fetch failed after 3 attempts")
	s.IncrementErrors()
	s.IncrementDetailPages()
	s.Persist()

	reloaded := Load(path)
	require.Equal(t, 10, reloaded.ResumePage())
	require.True(t, reloaded.IsScraped("59364-001"))
	require.Equal(t, 1, reloaded.TotalScraped())
	require.Equal(t, 1, reloaded.Stats().DetailPagesScraped)
	require.Equal(t, 1, reloaded.Stats().ErrorsEncountered)

	require.Len(t, reloaded.FailedUrls(), 1)
	failed := reloaded.FailedUrls()[0]
	require.Equal(t, "https://www.adb.org/projects/broken/main", failed.Url)
	require.Equal(t, "fetch failed after 3 attempts", failed.Error)
	require.NotEmpty(t, failed.Timestamp)
}

func TestPersistedSchema(t *testing.T) {
	path := tempCheckpointPath(t)

	s := Load(path)
	s.Persist()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(contents, &raw))
	for _, key := range []string{
		"last_updated",
		"last_page_scraped",
		"total_projects_scraped",
		"scraped_project_ids",
		"failed_urls",
		"statistics",
	} {
		require.Contains(t, raw, key)
	}

	// empty collections serialize as [] rather than null
	require.JSONEq(t, "[]", string(raw["scraped_project_ids"]))
	require.JSONEq(t, "[]", string(raw["failed_urls"]))
}

func TestFailedFetchesNeverDeduplicated(t *testing.T) {
	s := Load(tempCheckpointPath(t))

	s.RecordFailedFetch("https://www.adb.org/projects/broken/main", "timeout")
	s.RecordFailedFetch("https://www.adb.org/projects/broken/main", "timeout")

	require.Len(t, s.FailedUrls(), 2)
}

func TestReset(t *testing.T) {
	path := tempCheckpointPath(t)

	s := Load(path)
	s.RecordPageProgress(3)
	s.RecordItemScraped("59364-001")
	s.Persist()

	s.Reset()

	reloaded := Load(path)
	require.Equal(t, 0, reloaded.ResumePage())
	require.Equal(t, 0, reloaded.TotalScraped())
	require.False(t, reloaded.IsScraped("59364-001"))
}
