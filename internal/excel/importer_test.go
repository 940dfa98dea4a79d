package excel

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/juliomeza/memory-card/pkg/models"
)

type fakeStore struct {
	saved []models.Concept
}

func (s *fakeStore) Upsert(_ context.Context, concepts []models.Concept) (int, error) {
	s.saved = append(s.saved, concepts...)
	return len(concepts), nil
}

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &r))
	}

	path := filepath.Join(t.TempDir(), "concepts.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestImportFile_XLSX(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"id", "concept", "explanation", "category", "level"},
		{"c1", "goroutine", "lightweight thread", "1|Concurrency", 1000},
		{"", "channel", "typed conduit", "1|Concurrency", ""},
		{"c3", "", "missing prompt", "1|Concurrency", ""},
		{"c4", "slice", "view of an array", "", ""},
	})

	store := &fakeStore{}
	result, err := NewImporter(store, nil).ImportFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalProcessed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Row 4")
	assert.Contains(t, result.Errors[1], "Row 5")

	require.Len(t, store.saved, 2)
	assert.Equal(t, "c1", store.saved[0].ID)
	require.NotNil(t, store.saved[0].Level)
	assert.Equal(t, 1000, *store.saved[0].Level)

	assert.Equal(t, DeriveID("1|Concurrency", "channel"), store.saved[1].ID)
	assert.Nil(t, store.saved[1].Level)
}

func TestImport_CSV(t *testing.T) {
	data := "\xef\xbb\xbfid,concept,explanation,category,level\n" +
		"c1,defer,runs on return,2|Control,\n" +
		",,,,\n" +
		"c2,panic,stops the goroutine,,2000\n" +
		"c1,defer,runs when the function returns,2|Control,\n"

	store := &fakeStore{}
	result, err := NewImporter(store, nil).Import(context.Background(), strings.NewReader(data), FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.Errors)

	require.Len(t, store.saved, 2)
	assert.Equal(t, "runs when the function returns", store.saved[0].Explanation)
	assert.Equal(t, "", store.saved[1].Category)
	require.NotNil(t, store.saved[1].Level)
	assert.Equal(t, 2000, *store.saved[1].Level)
}

func TestImport_CSVBadLevel(t *testing.T) {
	data := "id,concept,explanation,category,level\nc1,x,y,1|A,high\n"
	_, err := NewImporter(&fakeStore{}, nil).Import(context.Background(), strings.NewReader(data), FormatCSV)
	assert.Error(t, err)
}

func TestImport_JSONUpload(t *testing.T) {
	data := `{"concepts":[
		{"id":"n1","concept":"noun","explanation":"a naming word","group":"1|Grammar","groupIDNumber":1000},
		{"id":"n2","concept":"verb","explanation":"an action word","group":"1|Grammar","groupIDNumber":"1001"},
		{"id":"n3","concept":"","explanation":"nothing","group":"1|Grammar"}
	]}`

	store := &fakeStore{}
	result, err := NewImporter(store, nil).Import(context.Background(), strings.NewReader(data), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	require.Len(t, store.saved, 2)
	assert.Equal(t, "noun", store.saved[0].Text)
	assert.Equal(t, "1|Grammar", store.saved[0].Category)
	assert.Equal(t, 1000, *store.saved[0].Level)
	assert.Equal(t, 1001, *store.saved[1].Level)
}

func TestImport_JSONInvalid(t *testing.T) {
	_, err := NewImporter(&fakeStore{}, nil).Import(context.Background(), strings.NewReader(`{"concepts":[{"id":"x","concept":"y","groupIDNumber":"one"}]}`), FormatJSON)
	assert.Error(t, err)

	_, err = NewImporter(&fakeStore{}, nil).Import(context.Background(), strings.NewReader(`not json`), FormatJSON)
	assert.Error(t, err)
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"words.xlsx", FormatXLSX},
		{"WORDS.CSV", FormatCSV},
		{"upload.json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := FormatFromName(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FormatFromName("notes.txt")
	assert.Error(t, err)
}

func TestColumnToIndex(t *testing.T) {
	assert.Equal(t, 0, columnToIndex("A"))
	assert.Equal(t, 4, columnToIndex("e"))
	assert.Equal(t, 26, columnToIndex("AA"))
	assert.Equal(t, -1, columnToIndex("1"))
}

func TestDeriveIDIsStable(t *testing.T) {
	assert.Equal(t, DeriveID("1|A", "x"), DeriveID("1|A", "x"))
	assert.NotEqual(t, DeriveID("1|A", "x"), DeriveID("1|B", "x"))
}
