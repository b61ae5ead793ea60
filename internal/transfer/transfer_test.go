package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/models"
)

var now = time.UnixMilli(9_000_000)

func TestDecode_FiltersAndNormalizes(t *testing.T) {
	data := []byte(`[
		{"id": "a", "title": "A", "content": "#one [[B]]", "tags": "x, y", "links": "b", "created_at": 1000, "updated_at": "2000"},
		{"id": "b", "title": "B", "content": "", "created_at": "2024-01-02T03:04:05Z", "updated_at": "garbage"},
		{"id": "c", "title": "No content"},
		{"title": "No id", "content": "x"},
		{"id": "d", "title": "Gone", "content": "", "deleted": 1},
		5, "junk", null, ["nested"]
	]`)

	notes, err := Decode(data, now)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	a := notes[0]
	assert.Equal(t, []string{"one"}, a.Tags)
	assert.Equal(t, []string{"b"}, a.Links)
	assert.Equal(t, int64(1000), a.CreatedAt.UnixMilli())
	assert.Equal(t, int64(2000), a.UpdatedAt.UnixMilli())
	assert.True(t, a.Dirty)

	b := notes[1]
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), b.CreatedAt.UnixMilli())
	assert.Equal(t, now.UnixMilli(), b.UpdatedAt.UnixMilli())
}

func TestDecode_Invalid(t *testing.T) {
	for _, data := range []string{`{not json`, `{"id": "a"}`, `"string"`, `null`, ``} {
		_, err := Decode([]byte(data), now)
		assert.ErrorIs(t, err, apperr.ErrInvalidImport, data)
	}
}

func TestParseTime_DecimalStrings(t *testing.T) {
	assert.Equal(t, int64(100), ParseTime("0100", now).UnixMilli())
	assert.Equal(t, int64(1500), ParseTime(" 1500 ", now).UnixMilli())
	assert.Equal(t, now, ParseTime("0x10", now))
	assert.Equal(t, now, ParseTime("-5", now))
	assert.Equal(t, int64(42), ParseTime(float64(42), now).UnixMilli())
}

func TestMerge_OnlyNewIDs(t *testing.T) {
	c := graph.NewCollection(models.Note{ID: "a", Title: "Existing", Content: "[[Imported]]"})
	imported := []models.Note{
		{ID: "a", Title: "Clobber"},
		{ID: "b", Title: "Imported", Content: "[[Existing]]"},
	}

	next, added := Merge(c, imported)
	assert.Equal(t, 1, added)

	a, _ := next.Get("a")
	assert.Equal(t, "Existing", a.Title)
	assert.Equal(t, []string{"b"}, a.Links)
	b, _ := next.Get("b")
	assert.Equal(t, []string{"a"}, b.Links)
}

func TestMerge_NothingNew(t *testing.T) {
	c := graph.NewCollection(models.Note{ID: "a"})
	next, added := Merge(c, []models.Note{{ID: "a"}})
	assert.Equal(t, 0, added)
	assert.Same(t, c, next)
}

func TestExportRoundTrip(t *testing.T) {
	c := graph.RecomputeLinks(graph.NewCollection(
		models.Note{ID: "a", Title: "A", Content: "[[B]] #t", CreatedAt: time.UnixMilli(1), UpdatedAt: time.UnixMilli(2), Dirty: true},
		models.Note{ID: "b", Title: "B", CreatedAt: time.UnixMilli(3), UpdatedAt: time.UnixMilli(4)},
		models.Note{ID: "z", Title: "Z", Deleted: true},
	))
	data, err := Export(c)
	require.NoError(t, err)

	notes, err := Decode(data, now)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "a", notes[0].ID)
	assert.Equal(t, int64(2), notes[0].UpdatedAt.UnixMilli())

	next, added := Merge(graph.NewCollection(), notes)
	assert.Equal(t, 2, added)
	a, _ := next.Get("a")
	assert.Equal(t, []string{"b"}, a.Links)
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, StringList("a,,b"))
	assert.Equal(t, []string{"a", "1"}, StringList([]any{"a", 1.0, ""}))
	assert.Equal(t, []string{}, StringList(nil))
}
