package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []map[string]any {
	return []map[string]any{
		{"name": "widget", "price": 9.99},
		{"name": "gadget", "stock": 3},
	}
}

func TestNewWritersCoversFormats(t *testing.T) {
	writers := NewWriters()
	for _, format := range []string{"json", "csv", "ndjson"} {
		w, ok := writers[format]
		require.True(t, ok, format)
		assert.Equal(t, format, w.Format())
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	err := jsonWriter{}.Write(&buf, sampleRecords(), map[string]any{"sessionId": "s-1"})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	records, ok := doc["records"].([]any)
	require.True(t, ok)
	assert.Len(t, records, 2)

	meta, ok := doc["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s-1", meta["sessionId"])
}

func TestJSONWriterOmitsEmptyMetadata(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jsonWriter{}.Write(&buf, sampleRecords(), nil))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NotContains(t, doc, "metadata")
}

func TestNDJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ndjsonWriter{}.Write(&buf, sampleRecords(), nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rec map[string]any
		assert.NoError(t, json.Unmarshal([]byte(line), &rec))
	}
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, csvWriter{}.Write(&buf, sampleRecords(), nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	// sorted union of keys across all records
	assert.Equal(t, "name,price,stock", lines[0])
	assert.Equal(t, "widget,9.99,", lines[1])
	assert.Equal(t, "gadget,,3", lines[2])
}

func TestCSVWriterNestedValues(t *testing.T) {
	var buf bytes.Buffer
	records := []map[string]any{{"obj": map[string]any{"a": 1}}}
	require.NoError(t, csvWriter{}.Write(&buf, records, nil))

	// nested cells fall back to JSON, quoted by the csv encoder
	assert.Contains(t, buf.String(), `"{""a"":1}"`)
}
