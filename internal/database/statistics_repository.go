package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Summary holds store-wide counters
type Summary struct {
	Users           int   `db:"users"`
	Concepts        int   `db:"concepts"`
	Categories      int   `db:"categories"`
	TotalAttempts   int64 `db:"total_attempts"`
	CorrectAttempts int64 `db:"correct_attempts"`
	ActiveUsers     int   `db:"active_users"`
}

// Accuracy returns the percentage of correct attempts across all users
func (s Summary) Accuracy() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.CorrectAttempts) / float64(s.TotalAttempts) * 100
}

// StatisticsRepository computes aggregate statistics
type StatisticsRepository struct {
	db *DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Summary returns store-wide counters. Active users are those with an
// attempt at or after since.
func (r *StatisticsRepository) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	var s Summary
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM concepts) AS concepts,
			(SELECT COUNT(DISTINCT category) FROM concepts WHERE category <> '') AS categories,
			(SELECT COALESCE(SUM(total_attempts), 0) FROM concept_progress) AS total_attempts,
			(SELECT COALESCE(SUM(correct_attempts), 0) FROM concept_progress) AS correct_attempts,
			(SELECT COUNT(DISTINCT user_id) FROM concept_progress WHERE last_attempt >= ?) AS active_users
	`), since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get statistics summary")
	}
	return &s, nil
}

// ConceptAccuracy is the accuracy of one user on one concept
type ConceptAccuracy struct {
	ConceptID       string  `db:"concept_id"`
	Text            string  `db:"text"`
	TotalAttempts   int     `db:"total_attempts"`
	CorrectAttempts int     `db:"correct_attempts"`
	Accuracy        float64 `db:"-"`
}

// WeakestConcepts returns a user's attempted concepts with the lowest accuracy first
func (r *StatisticsRepository) WeakestConcepts(ctx context.Context, userID int64, limit int) ([]ConceptAccuracy, error) {
	if limit <= 0 {
		limit = 10
	}
	rows := []ConceptAccuracy{}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT p.concept_id, c.text, p.total_attempts, p.correct_attempts
		FROM concept_progress p
		JOIN concepts c ON c.id = p.concept_id
		WHERE p.user_id = ? AND p.total_attempts > 0
		ORDER BY CAST(p.correct_attempts AS REAL) / p.total_attempts, p.total_attempts DESC, p.concept_id
		LIMIT ?
	`), userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get concept accuracy")
	}
	for i := range rows {
		rows[i].Accuracy = float64(rows[i].CorrectAttempts) / float64(rows[i].TotalAttempts) * 100
	}
	return rows, nil
}
