package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/juliomeza/memory-card/pkg/models"
)

const userColumns = "telegram_id, username, first_name, notification_enabled, notification_hour, created_at"

// UserRepository handles database operations for users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by Telegram ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind("SELECT "+userColumns+" FROM users WHERE telegram_id = ?"), id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "user %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user by ID")
	}
	return &user, nil
}

// GetAll returns all users
func (r *UserRepository) GetAll(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC"); err != nil {
		return nil, errors.Wrap(err, "failed to get users")
	}
	return users, nil
}

// Create inserts a new user or refreshes the profile of an existing one.
// Notification settings of an existing user are left alone.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (telegram_id, username, first_name, notification_enabled, notification_hour, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name
	`), user.ID, user.Username, user.FirstName, user.NotificationEnabled, user.NotificationHour, user.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

// UpdateNotifications changes when and whether a user gets reminders
func (r *UserRepository) UpdateNotifications(ctx context.Context, id int64, enabled bool, hour int) error {
	if hour < 0 || hour > 23 {
		return errors.Errorf("invalid notification hour %d", hour)
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET notification_enabled = ?, notification_hour = ? WHERE telegram_id = ?
	`), enabled, hour, id)
	if err != nil {
		return errors.Wrap(err, "failed to update notifications")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(ErrNotFound, "user %d", id)
	}
	return nil
}

// Delete removes a user
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM users WHERE telegram_id = ?"), id); err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	return nil
}

// GetUsersForNotification returns users who have notifications enabled at the given hour
func (r *UserRepository) GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(
		"SELECT "+userColumns+" FROM users WHERE notification_enabled = ? AND notification_hour = ? ORDER BY telegram_id",
	), true, hour)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get users for notification")
	}
	return users, nil
}
