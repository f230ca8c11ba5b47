// Package output appends scraped records to JSON and CSV files
// incrementally, so partial runs still leave usable data behind.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

// Target names the files one record stream flushes to. Empty paths
// disable that format.
type Target struct {
	JsonPath string
	CsvPath  string
}

// Flush appends a batch of records to every enabled format. It is
// called repeatedly during a run with small batches; each call leaves
// the files complete and readable.
func Flush[T any](target Target, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if target.JsonPath != "" {
		if err := AppendJSON(target.JsonPath, records); err != nil {
			return fmt.Errorf("appending json: %w", err)
		}
	}
	if target.CsvPath != "" {
		if err := AppendCSV(target.CsvPath, records); err != nil {
			return fmt.Errorf("appending csv: %w", err)
		}
	}
	return nil
}

type jsonMetadata struct {
	LastUpdated   string `json:"last_updated"`
	TotalProjects int    `json:"total_projects"`
}

type jsonEnvelope struct {
	Metadata jsonMetadata      `json:"metadata"`
	Projects []json.RawMessage `json:"projects"`
}

// AppendJSON merges records into the JSON document at path,
// deduplicating by project_id with existing records winning. The file
// is rewritten whole through a temp file rename, so readers never see
// a partial document.
func AppendJSON[T any](path string, records []T) error {
	envelope := jsonEnvelope{Projects: []json.RawMessage{}}

	contents, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(contents, &envelope); err != nil {
			return fmt.Errorf("existing output %s is not valid json: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	seen := make(map[string]struct{}, len(envelope.Projects))
	for _, raw := range envelope.Projects {
		if id := probeProjectId(raw); id != "" {
			seen[id] = struct{}{}
		}
	}

	added := 0
	for _, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		id := probeProjectId(raw)
		if id != "" {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		envelope.Projects = append(envelope.Projects, raw)
		added++
	}

	envelope.Metadata = jsonMetadata{
		LastUpdated:   time.Now().Format(time.RFC3339),
		TotalProjects: len(envelope.Projects),
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	slog.Debug("json output updated", "path", path, "added", added, "total", len(envelope.Projects))
	return nil
}

// probeProjectId pulls the project_id field out of an encoded record
// without needing the concrete type.
func probeProjectId(raw json.RawMessage) string {
	var probe struct {
		ProjectId string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ProjectId
}

// AppendCSV appends records to the CSV file at path, writing the
// header only when the file is new. Columns follow the record type's
// json tags in declaration order, so the CSV and JSON schemas stay
// aligned. Unlike the JSON side this never deduplicates; CSV is an
// append-only log.
func AppendCSV[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	info, err := os.Stat(path)
	writeHeader := os.IsNotExist(err) || (err == nil && info.Size() == 0)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	var zero T
	columns := csvColumns(reflect.TypeOf(zero))

	if writeHeader {
		if err := writer.Write(columns); err != nil {
			return err
		}
	}
	for _, record := range records {
		if err := writer.Write(csvRow(reflect.ValueOf(record))); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvColumns(t reflect.Type) []string {
	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := columnName(t.Field(i)); name != "" {
			columns = append(columns, name)
		}
	}
	return columns
}

func csvRow(v reflect.Value) []string {
	t := v.Type()
	row := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if columnName(t.Field(i)) == "" {
			continue
		}
		row = append(row, cellValue(v.Field(i)))
	}
	return row
}

func columnName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

func cellValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(v.Interface())
	}
}
