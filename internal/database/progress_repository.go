package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/juliomeza/memory-card/internal/spaced_repetition"
	"github.com/juliomeza/memory-card/pkg/models"
)

// ErrConflict is returned when a group progress update keeps losing to
// concurrent writers
var ErrConflict = errors.New("concurrent group progress update")

// ProgressRepository stores per-user concept and group progress
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new repository instance
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Get returns the full progress of a user, or nil when nothing is stored
func (r *ProgressRepository) Get(ctx context.Context, userID int64) (*models.ProgressRecord, error) {
	var concepts []models.ConceptProgress
	err := r.db.SelectContext(ctx, &concepts, r.db.Rebind(`
		SELECT concept_id, total_attempts, correct_attempts, last_attempt, next_review, interval_days
		FROM concept_progress
		WHERE user_id = ?
	`), userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get concept progress")
	}

	var groups []models.GroupProgress
	err = r.db.SelectContext(ctx, &groups, r.db.Rebind(`
		SELECT group_key, completed, total, version, updated_at
		FROM group_progress
		WHERE user_id = ?
	`), userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get group progress")
	}

	if len(concepts) == 0 && len(groups) == 0 {
		return nil, nil
	}

	record := models.NewProgressRecord(userID)
	for _, p := range concepts {
		record.Concepts[p.ConceptID] = utcProgress(p)
	}
	for _, g := range groups {
		g.UpdatedAt = g.UpdatedAt.UTC()
		record.Groups[g.GroupKey] = g
	}
	return record, nil
}

// RecordAttempt applies one attempt to a concept's progress. The read and
// the write happen in a single transaction.
func (r *ProgressRepository) RecordAttempt(ctx context.Context, userID int64, conceptID string, correct bool, now time.Time) (*models.ConceptProgress, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		SELECT concept_id, total_attempts, correct_attempts, last_attempt, next_review, interval_days
		FROM concept_progress
		WHERE user_id = ? AND concept_id = ?
	`
	if r.db.IsPostgres() {
		query += " FOR UPDATE"
	}

	var current models.ConceptProgress
	err = tx.GetContext(ctx, &current, tx.Rebind(query), userID, conceptID)
	switch {
	case err == sql.ErrNoRows:
		current = models.ConceptProgress{ConceptID: conceptID, Interval: models.DefaultInterval}
	case err != nil:
		return nil, errors.Wrap(err, "failed to read concept progress")
	case !current.Valid():
		// A malformed row counts as never attempted.
		current = models.ConceptProgress{ConceptID: conceptID, Interval: models.DefaultInterval}
	}

	next := spaced_repetition.Apply(current, correct, now.UTC())

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO concept_progress (
			user_id, concept_id, total_attempts, correct_attempts, last_attempt, next_review, interval_days
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, concept_id) DO UPDATE SET
			total_attempts = excluded.total_attempts,
			correct_attempts = excluded.correct_attempts,
			last_attempt = excluded.last_attempt,
			next_review = excluded.next_review,
			interval_days = excluded.interval_days
	`), userID, conceptID, next.TotalAttempts, next.CorrectAttempts, next.LastAttempt, next.NextReview, next.Interval)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save concept progress")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit concept progress")
	}
	return &next, nil
}

// SetGroupProgress raises the stored batch counters of a group. Neither
// counter ever decreases; each change bumps the row version, and a lost
// race is retried once before ErrConflict is returned.
func (r *ProgressRepository) SetGroupProgress(ctx context.Context, userID int64, groupKey string, completed, total int) (*models.GroupProgress, error) {
	for attempt := 0; attempt < 2; attempt++ {
		gp, err := r.trySetGroupProgress(ctx, userID, groupKey, completed, total)
		if err == nil {
			return gp, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrConflict, "group %q of user %d", groupKey, userID)
}

func (r *ProgressRepository) trySetGroupProgress(ctx context.Context, userID int64, groupKey string, completed, total int) (*models.GroupProgress, error) {
	now := time.Now().UTC()

	var stored models.GroupProgress
	err := r.db.GetContext(ctx, &stored, r.db.Rebind(`
		SELECT group_key, completed, total, version, updated_at
		FROM group_progress
		WHERE user_id = ? AND group_key = ?
	`), userID, groupKey)

	if err == sql.ErrNoRows {
		gp := models.GroupProgress{
			GroupKey:  groupKey,
			Completed: max(completed, 0),
			Total:     max(total, 0),
			Version:   1,
			UpdatedAt: now,
		}
		result, err := r.db.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO group_progress (user_id, group_key, completed, total, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, group_key) DO NOTHING
		`), userID, groupKey, gp.Completed, gp.Total, gp.Version, gp.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create group progress")
		}
		if rows, err := result.RowsAffected(); err != nil {
			return nil, errors.Wrap(err, "failed to get rows affected")
		} else if rows == 0 {
			return nil, ErrConflict
		}
		return &gp, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get group progress")
	}

	next := stored
	next.Completed = max(stored.Completed, completed)
	next.Total = max(stored.Total, total)
	if next.Completed == stored.Completed && next.Total == stored.Total {
		next.UpdatedAt = next.UpdatedAt.UTC()
		return &next, nil
	}
	next.Version = stored.Version + 1
	next.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE group_progress SET
			completed = ?,
			total = ?,
			version = ?,
			updated_at = ?
		WHERE user_id = ? AND group_key = ? AND version = ?
	`), next.Completed, next.Total, next.Version, next.UpdatedAt, userID, groupKey, stored.Version)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update group progress")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return nil, ErrConflict
	}
	return &next, nil
}

// DeleteUser removes all progress of a user
func (r *ProgressRepository) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM concept_progress WHERE user_id = ?"), userID); err != nil {
		return errors.Wrap(err, "failed to delete concept progress")
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM group_progress WHERE user_id = ?"), userID); err != nil {
		return errors.Wrap(err, "failed to delete group progress")
	}
	return errors.Wrap(tx.Commit(), "failed to commit progress deletion")
}

// DeleteAll removes the progress of every user
func (r *ProgressRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM concept_progress"); err != nil {
		return errors.Wrap(err, "failed to delete concept progress")
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM group_progress"); err != nil {
		return errors.Wrap(err, "failed to delete group progress")
	}
	return nil
}

func utcProgress(p models.ConceptProgress) models.ConceptProgress {
	if p.LastAttempt != nil {
		t := p.LastAttempt.UTC()
		p.LastAttempt = &t
	}
	if p.NextReview != nil {
		t := p.NextReview.UTC()
		p.NextReview = &t
	}
	return p
}
