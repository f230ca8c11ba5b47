package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ProjectId string   `json:"project_id"`
	Title     string   `json:"title"`
	Country   string   `json:"country"`
	Tags      []string `json:"tags"`
}

func readEnvelope(t *testing.T, path string) jsonEnvelope {
	t.Helper()
	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	var envelope jsonEnvelope
	require.NoError(t, json.Unmarshal(contents, &envelope))
	return envelope
}

func TestAppendJSONCreatesEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")

	err := AppendJSON(path, []testRecord{
		{ProjectId: "59364-001", Title: "Finance Program", Country: "Thailand"},
	})
	require.NoError(t, err)

	envelope := readEnvelope(t, path)
	require.Equal(t, 1, envelope.Metadata.TotalProjects)
	require.NotEmpty(t, envelope.Metadata.LastUpdated)
	require.Len(t, envelope.Projects, 1)
}

func TestAppendJSONDeduplicatesById(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")

	require.NoError(t, AppendJSON(path, []testRecord{
		{ProjectId: "59364-001", Title: "Original Title"},
	}))
	require.NoError(t, AppendJSON(path, []testRecord{
		{ProjectId: "59364-001", Title: "Replacement Title"},
		{ProjectId: "58012-002", Title: "New Project"},
	}))

	envelope := readEnvelope(t, path)
	require.Equal(t, 2, envelope.Metadata.TotalProjects)
	require.Len(t, envelope.Projects, 2)

	// the earlier record wins on collision
	var first testRecord
	require.NoError(t, json.Unmarshal(envelope.Projects[0], &first))
	require.Equal(t, "Original Title", first.Title)
}

func TestAppendJSONRejectsCorruptExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	err := AppendJSON(path, []testRecord{{ProjectId: "59364-001"}})
	require.Error(t, err)
}

func TestAppendCSVHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.csv")

	require.NoError(t, AppendCSV(path, []testRecord{
		{ProjectId: "59364-001", Title: "Finance Program", Country: "Thailand", Tags: []string{"finance", "climate"}},
	}))
	require.NoError(t, AppendCSV(path, []testRecord{
		{ProjectId: "58012-002", Title: "Water Project", Country: "Nepal"},
	}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, []string{"project_id", "title", "country", "tags"}, rows[0])
	require.Equal(t, "59364-001", rows[1][0])
	require.Equal(t, "finance; climate", rows[1][3])
	require.Equal(t, "58012-002", rows[2][0])
}

func TestFlushWritesBothFormats(t *testing.T) {
	dir := t.TempDir()
	target := Target{
		JsonPath: filepath.Join(dir, "projects.json"),
		CsvPath:  filepath.Join(dir, "projects.csv"),
	}

	require.NoError(t, Flush(target, []testRecord{{ProjectId: "59364-001", Title: "Finance Program"}}))
	require.NoError(t, Flush(target, []testRecord{}))

	require.FileExists(t, target.JsonPath)
	require.FileExists(t, target.CsvPath)

	contents, err := os.ReadFile(target.CsvPath)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(contents), "\n"))
}

func TestFlushJsonOnly(t *testing.T) {
	dir := t.TempDir()
	target := Target{JsonPath: filepath.Join(dir, "projects.json")}

	require.NoError(t, Flush(target, []testRecord{{ProjectId: "59364-001"}}))
	require.FileExists(t, target.JsonPath)
	require.NoFileExists(t, filepath.Join(dir, "projects.csv"))
}
