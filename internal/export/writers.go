package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"

	"github.com/scrapeforge/scrapeforge/internal/errs"
)

// Writer serializes a batch of field-maps into one output format. The
// exporter looks writers up by Format; the engine itself never touches
// bytes.
type Writer interface {
	Format() string
	Write(w io.Writer, records []map[string]any, metadata map[string]any) error
}

// NewWriters returns the built-in writer set keyed by format.
func NewWriters() map[string]Writer {
	writers := make(map[string]Writer)
	for _, w := range []Writer{jsonWriter{}, csvWriter{}, ndjsonWriter{}} {
		writers[w.Format()] = w
	}
	return writers
}

type jsonWriter struct{}

func (jsonWriter) Format() string { return "json" }

func (jsonWriter) Write(w io.Writer, records []map[string]any, metadata map[string]any) error {
	doc := map[string]any{"records": records}
	if len(metadata) > 0 {
		doc["metadata"] = metadata
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errs.Wrap(err, "encode json export")
	}
	return nil
}

type ndjsonWriter struct{}

func (ndjsonWriter) Format() string { return "ndjson" }

func (ndjsonWriter) Write(w io.Writer, records []map[string]any, _ map[string]any) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return errs.Wrap(err, "encode ndjson export")
		}
	}
	return nil
}

type csvWriter struct{}

func (csvWriter) Format() string { return "csv" }

// Write emits a header built from the sorted union of keys across all
// records, then one row per record with empty cells for absent fields.
func (csvWriter) Write(w io.Writer, records []map[string]any, _ map[string]any) error {
	seen := make(map[string]struct{})
	var header []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errs.Wrap(err, "write csv header")
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for i, col := range header {
			row[i] = cell(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return errs.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errs.Wrap(cw.Error(), "flush csv export")
}

// cell renders one CSV cell; nested values fall back to JSON.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
