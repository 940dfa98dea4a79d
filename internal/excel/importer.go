package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/juliomeza/memory-card/internal/logging"
	"github.com/juliomeza/memory-card/pkg/models"
)

// Format is a supported import file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// conceptNamespace seeds the IDs derived for rows without one
var conceptNamespace = uuid.MustParse("6f1c3b0e-2d7a-4c55-9a2e-3b8f0d4e7a61")

// FormatFromName picks the format from a file name's extension
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.Errorf("unsupported file type %q", filepath.Ext(name))
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	IDColumn          string // Column with the concept ID
	ConceptColumn     string // Column with the prompt
	ExplanationColumn string // Column with the explanation
	CategoryColumn    string // Column with the "N|name" category
	LevelColumn       string // Column with the numeric level
	SheetName         string // Sheet to import, the first one when empty
	StartRow          int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		IDColumn:          "A",
		ConceptColumn:     "B",
		ExplanationColumn: "C",
		CategoryColumn:    "D",
		LevelColumn:       "E",
		StartRow:          2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// ConceptStore persists imported concepts
type ConceptStore interface {
	Upsert(ctx context.Context, concepts []models.Concept) (int, error)
}

// Importer reads concepts from files and saves them
type Importer struct {
	store    ConceptStore
	config   ImportConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewImporter creates an importer using the default column layout
func NewImporter(store ConceptStore, logger *zap.Logger) *Importer {
	return &Importer{
		store:    store,
		config:   DefaultImportConfig(),
		validate: validator.New(),
		logger:   logging.OrNop(logger).Named("import"),
	}
}

// WithConfig replaces the column layout
func (im *Importer) WithConfig(config ImportConfig) *Importer {
	im.config = config
	return im
}

// ImportFile imports concepts from an XLSX, CSV or JSON file
func (im *Importer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open import file")
	}
	defer f.Close()

	return im.Import(ctx, f, format)
}

// Import reads concepts in the given format, validates them and saves the
// valid ones in one batch. Invalid rows are reported in the result.
func (im *Importer) Import(ctx context.Context, r io.Reader, format Format) (*ImportResult, error) {
	var rows []row
	var err error
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(r, im.config)
	case FormatCSV:
		rows, err = readCSV(r, im.config)
	case FormatJSON:
		rows, err = readJSON(r)
	default:
		err = errors.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	concepts := make([]models.Concept, 0, len(rows))
	seen := make(map[string]int, len(rows))

	for _, rec := range rows {
		if rec.empty() {
			continue
		}
		result.TotalProcessed++

		c, err := im.toConcept(rec)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rec.line, err))
			continue
		}
		if prev, dup := seen[c.ID]; dup {
			// later rows replace earlier ones
			concepts[prev] = c
			result.Skipped++
			continue
		}
		seen[c.ID] = len(concepts)
		concepts = append(concepts, c)
	}

	n, err := im.store.Upsert(ctx, concepts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save concepts")
	}
	result.Imported = n

	im.logger.Info("concepts imported",
		zap.String("format", string(format)),
		zap.Int("processed", result.TotalProcessed),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// row is one record read from a file, before validation
type row struct {
	line        int
	ID          string `validate:"required,max=200"`
	Text        string `validate:"required,max=2000"`
	Explanation string `validate:"max=8000"`
	Category    string `validate:"required_without=Level,max=200"`
	Level       *int   `validate:"omitempty,min=0"`
}

func (r row) empty() bool {
	return r.ID == "" && r.Text == "" && r.Explanation == "" && r.Category == "" && r.Level == nil
}

func (im *Importer) toConcept(r row) (models.Concept, error) {
	r.Text = strings.TrimSpace(r.Text)
	r.Explanation = strings.TrimSpace(r.Explanation)
	r.Category = strings.TrimSpace(r.Category)
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" && r.Text != "" {
		r.ID = DeriveID(r.Category, r.Text)
	}

	if err := im.validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.Concept{}, errors.Errorf("invalid %s (%s)", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return models.Concept{}, err
	}

	return models.Concept{
		ID:          r.ID,
		Text:        r.Text,
		Explanation: r.Explanation,
		Category:    r.Category,
		Level:       r.Level,
	}, nil
}

// DeriveID returns a stable ID for a concept that was imported without one
func DeriveID(category, text string) string {
	return uuid.NewSHA1(conceptNamespace, []byte(category+"\x00"+text)).String()
}

func readXLSX(r io.Reader, config ImportConfig) ([]row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows")
	}
	return fromCells(cells, config)
}

func readCSV(r io.Reader, config ImportConfig) ([]row, error) {
	// Excel writes a BOM in front of UTF-8 CSV files.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV file")
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	cells, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "error reading CSV")
	}
	return fromCells(cells, config)
}

func fromCells(cells [][]string, config ImportConfig) ([]row, error) {
	start := config.StartRow
	if start < 1 {
		start = 1
	}

	rows := make([]row, 0, len(cells))
	for i, cellRow := range cells {
		if i < start-1 {
			continue
		}
		rec := row{
			line:        i + 1,
			ID:          cell(cellRow, config.IDColumn),
			Text:        cell(cellRow, config.ConceptColumn),
			Explanation: cell(cellRow, config.ExplanationColumn),
			Category:    cell(cellRow, config.CategoryColumn),
		}
		if level := cell(cellRow, config.LevelColumn); level != "" {
			n, err := strconv.Atoi(level)
			if err != nil {
				return nil, errors.Errorf("row %d: level %q is not a number", i+1, level)
			}
			rec.Level = &n
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// uploadFile is the bulk upload document: {"concepts":[...]}
type uploadFile struct {
	Concepts []uploadConcept `json:"concepts"`
}

type uploadConcept struct {
	ID            string          `json:"id"`
	Concept       string          `json:"concept"`
	Explanation   string          `json:"explanation"`
	Group         string          `json:"group"`
	GroupIDNumber json.RawMessage `json:"groupIDNumber"`
}

func readJSON(r io.Reader) ([]row, error) {
	var upload uploadFile
	if err := json.NewDecoder(r).Decode(&upload); err != nil {
		return nil, errors.Wrap(err, "failed to decode upload file")
	}

	rows := make([]row, 0, len(upload.Concepts))
	for i, c := range upload.Concepts {
		level, err := parseGroupNumber(c.GroupIDNumber)
		if err != nil {
			return nil, errors.Wrapf(err, "concept %d", i+1)
		}
		rows = append(rows, row{
			line:        i + 1,
			ID:          c.ID,
			Text:        c.Concept,
			Explanation: c.Explanation,
			Category:    c.Group,
			Level:       level,
		})
	}
	return rows, nil
}

// parseGroupNumber accepts the group number as a JSON number or a numeric string
func parseGroupNumber(raw json.RawMessage) (*int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == `""` {
		return nil, nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, errors.Errorf("groupIDNumber %s is not an integer", string(raw))
	}
	return &n, nil
}

func cell(cells []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
