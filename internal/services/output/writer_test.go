package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/models"
)

// fixedCounter charges a fixed token price per record regardless of content
type fixedCounter struct{ perRecord int }

func (c fixedCounter) Count(string) int { return c.perRecord }

func record(n string) models.CrawledRecord {
	return models.CrawledRecord{
		Title: "Page " + n,
		URL:   "https://example.test/" + n,
		HTML:  strings.Repeat("content ", 10),
	}
}

func readSegment(t *testing.T, path string) []models.CrawledRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []models.CrawledRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestSingleSegmentWritesBasePath(t *testing.T) {
	base := filepath.Join(t.TempDir(), "jobs", "alpha.json")
	w := NewWriter(base, 0, models.Unlimited, estimateCounter{}, arbor.NewLogger())

	require.NoError(t, w.Add(record("a")))
	require.NoError(t, w.Add(record("b")))

	paths, err := w.Close()
	require.NoError(t, err)
	require.Equal(t, []string{base}, paths)

	records := readSegment(t, base)
	require.Len(t, records, 2)
	assert.Equal(t, "https://example.test/a", records[0].URL)
}

func TestEmptyWriterWritesNothing(t *testing.T) {
	base := filepath.Join(t.TempDir(), "empty.json")
	w := NewWriter(base, 0, models.Unlimited, estimateCounter{}, arbor.NewLogger())

	paths, err := w.Close()
	require.NoError(t, err)
	assert.Empty(t, paths)
	_, statErr := os.Stat(base)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTokenCapSplitsSegments(t *testing.T) {
	base := filepath.Join(t.TempDir(), "alpha.json")
	// 10 tokens per record, cap 25: segments of 2, 2, 1
	w := NewWriter(base, 0, models.NewLimit(25), fixedCounter{perRecord: 10}, arbor.NewLogger())

	for _, n := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, w.Add(record(n)))
	}

	paths, err := w.Close()
	require.NoError(t, err)

	dir := filepath.Dir(base)
	require.Equal(t, []string{
		filepath.Join(dir, "alpha-1.json"),
		filepath.Join(dir, "alpha-2.json"),
		filepath.Join(dir, "alpha-3.json"),
	}, paths)

	assert.Len(t, readSegment(t, paths[0]), 2)
	assert.Len(t, readSegment(t, paths[1]), 2)
	assert.Len(t, readSegment(t, paths[2]), 1)

	// Base path no longer exists once segments are numbered
	_, statErr := os.Stat(base)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOversizedRecordHalvesEstimate(t *testing.T) {
	base := filepath.Join(t.TempDir(), "alpha.json")
	// Each record is 60 tokens against a cap of 50: every record is oversized,
	// and the halved estimate (30) still forces one record per segment.
	w := NewWriter(base, 0, models.NewLimit(50), fixedCounter{perRecord: 60}, arbor.NewLogger())

	require.NoError(t, w.Add(record("a")))
	require.NoError(t, w.Add(record("b")))

	paths, err := w.Close()
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Len(t, readSegment(t, paths[0]), 1)
	assert.Len(t, readSegment(t, paths[1]), 1)
}

func TestByteCapSplitsSegments(t *testing.T) {
	base := filepath.Join(t.TempDir(), "alpha.json")
	w := NewWriter(base, 1, models.Unlimited, estimateCounter{}, arbor.NewLogger())

	big := models.CrawledRecord{
		Title: "Big",
		URL:   "https://example.test/big",
		HTML:  strings.Repeat("x", 700*1024),
	}
	require.NoError(t, w.Add(big))
	require.NoError(t, w.Add(big))

	paths, err := w.Close()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestOutputIsPrettyPrinted(t *testing.T) {
	base := filepath.Join(t.TempDir(), "alpha.json")
	w := NewWriter(base, 0, models.Unlimited, estimateCounter{}, arbor.NewLogger())
	require.NoError(t, w.Add(record("a")))
	_, err := w.Close()
	require.NoError(t, err)

	data, err := os.ReadFile(base)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "[\n  {"))
	assert.Contains(t, text, "\n    \"title\"")
}

// Replaying the same records must produce byte-identical segments.
func TestOutputDeterminism(t *testing.T) {
	write := func(dir string) []byte {
		base := filepath.Join(dir, "alpha.json")
		w := NewWriter(base, 0, models.NewLimit(1000), estimateCounter{}, arbor.NewLogger())
		for _, n := range []string{"a", "b", "c"} {
			require.NoError(t, w.Add(record(n)))
		}
		_, err := w.Close()
		require.NoError(t, err)
		data, err := os.ReadFile(base)
		require.NoError(t, err)
		return data
	}

	first := write(t.TempDir())
	second := write(t.TempDir())
	assert.Equal(t, first, second)
}

func TestHookExtrasSurviveSerialization(t *testing.T) {
	base := filepath.Join(t.TempDir(), "alpha.json")
	w := NewWriter(base, 0, models.Unlimited, estimateCounter{}, arbor.NewLogger())

	rec := record("a")
	rec.Extra = map[string]any{"lang": "en"}
	require.NoError(t, w.Add(rec))
	_, err := w.Close()
	require.NoError(t, err)

	records := readSegment(t, base)
	require.Len(t, records, 1)
	assert.Equal(t, "en", records[0].Extra["lang"])
}
