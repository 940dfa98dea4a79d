package database

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/juliomeza/memory-card/internal/spaced_repetition"
	"github.com/juliomeza/memory-card/pkg/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

const conceptColumns = "id, text, explanation, category, level, created_at, updated_at"

// ConceptRepository handles database operations for concepts
type ConceptRepository struct {
	db *DB
}

// NewConceptRepository creates a new repository instance
func NewConceptRepository(db *DB) *ConceptRepository {
	return &ConceptRepository{db: db}
}

// ListByGroup returns the concepts of a category
func (r *ConceptRepository) ListByGroup(ctx context.Context, group string) ([]models.Concept, error) {
	concepts := []models.Concept{}
	query := r.db.Rebind("SELECT " + conceptColumns + " FROM concepts WHERE category = ? ORDER BY id")
	if err := r.db.SelectContext(ctx, &concepts, query, group); err != nil {
		return nil, errors.Wrap(err, "failed to get concepts by category")
	}
	return concepts, nil
}

// ListByLevel returns the concepts whose level falls in the level group
// starting at level
func (r *ConceptRepository) ListByLevel(ctx context.Context, level int) ([]models.Concept, error) {
	lo, hi := spaced_repetition.LevelRange(level)
	concepts := []models.Concept{}
	query := r.db.Rebind("SELECT " + conceptColumns + " FROM concepts WHERE level >= ? AND level < ? ORDER BY level, id")
	if err := r.db.SelectContext(ctx, &concepts, query, lo, hi); err != nil {
		return nil, errors.Wrap(err, "failed to get concepts by level")
	}
	return concepts, nil
}

// ListAll returns every concept
func (r *ConceptRepository) ListAll(ctx context.Context) ([]models.Concept, error) {
	concepts := []models.Concept{}
	if err := r.db.SelectContext(ctx, &concepts, "SELECT "+conceptColumns+" FROM concepts ORDER BY category, id"); err != nil {
		return nil, errors.Wrap(err, "failed to get concepts")
	}
	return concepts, nil
}

// Categories returns the distinct category keys ordered by their numeric prefix
func (r *ConceptRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.SelectContext(ctx, &categories, "SELECT DISTINCT category FROM concepts WHERE category <> ''")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get categories")
	}
	SortCategories(categories)
	return categories, nil
}

// Count returns the number of stored concepts
func (r *ConceptRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM concepts"); err != nil {
		return 0, errors.Wrap(err, "failed to count concepts")
	}
	return n, nil
}

// Upsert inserts concepts or replaces the ones with the same ID, in one transaction
func (r *ConceptRepository) Upsert(ctx context.Context, concepts []models.Concept) (int, error) {
	if len(concepts) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO concepts (id, text, explanation, category, level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			text = excluded.text,
			explanation = excluded.explanation,
			category = excluded.category,
			level = excluded.level,
			updated_at = excluded.updated_at
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prepare concept upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range concepts {
		if c.ID == "" {
			return 0, errors.New("concept without ID")
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.Explanation, c.Category, c.Level, now, now); err != nil {
			return 0, errors.Wrapf(err, "failed to save concept %q", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit concepts")
	}
	return len(concepts), nil
}

// DeleteAll removes every concept and returns how many were deleted
func (r *ConceptRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM concepts")
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete concepts")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return rows, nil
}

// SortCategories orders "N|name" keys by N. Keys without a numeric prefix
// come last, in lexical order.
func SortCategories(categories []string) {
	sort.SliceStable(categories, func(i, j int) bool {
		ni, oki := categoryNumber(categories[i])
		nj, okj := categoryNumber(categories[j])
		switch {
		case oki && okj && ni != nj:
			return ni < nj
		case oki != okj:
			return oki
		}
		return categories[i] < categories[j]
	})
}

func categoryNumber(key string) (int, bool) {
	prefix, _, _ := strings.Cut(key, "|")
	n, err := strconv.Atoi(strings.TrimSpace(prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
