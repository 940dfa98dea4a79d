package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/juliomeza/memory-card/internal/logging"
	"github.com/juliomeza/memory-card/internal/metrics"
	"github.com/juliomeza/memory-card/pkg/models"
)

// Default notification window, in hours of the scheduler's location
const (
	DefaultNotificationStartHour = 4
	DefaultNotificationEndHour   = 18
)

// Notifier sends review reminders
type Notifier interface {
	SendReminder(ctx context.Context, userID int64, due int) error
}

// UserSource lists the users who asked for a reminder at a given hour
type UserSource interface {
	GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error)
}

// DueCounter counts the concepts due for a user
type DueCounter interface {
	DueCount(ctx context.Context, userID int64) (int, error)
}

// Options configures a Scheduler
type Options struct {
	StartHour int
	EndHour   int
	Location  *time.Location
	Clock     func() time.Time
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// Scheduler sends hourly reminders to users with concepts due
type Scheduler struct {
	scheduler *gocron.Scheduler
	users     UserSource
	due       DueCounter
	notifier  Notifier
	startHour int
	endHour   int
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// New creates a new scheduler instance
func New(users UserSource, due DueCounter, notifier Notifier, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(opts.Location),
		users:     users,
		due:       due,
		notifier:  notifier,
		startHour: opts.StartHour,
		endHour:   opts.EndHour,
		location:  opts.Location,
		now:       opts.Clock,
		logger:    logging.OrNop(opts.Logger).Named("scheduler"),
		metrics:   opts.Metrics,
	}
}

// Run schedules the hourly reminder check and blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.scheduler.Every(1).Hour().Do(func() {
		if _, err := s.CheckAndSendReminders(ctx); err != nil {
			s.logger.Error("reminder check failed", zap.Error(err))
		}
	})
	if err != nil {
		return errors.Wrap(err, "failed to schedule reminders")
	}

	s.scheduler.StartAsync()
	s.logger.Info("reminder scheduler started",
		zap.Int("start_hour", s.startHour),
		zap.Int("end_hour", s.endHour),
	)

	<-ctx.Done()
	s.scheduler.Stop()
	s.logger.Info("reminder scheduler stopped")
	return nil
}

// InWindow reports whether reminders may be sent at the given hour
func (s *Scheduler) InWindow(hour int) bool {
	return hour >= s.startHour && hour <= s.endHour
}

// CheckAndSendReminders notifies the users whose reminder hour is now and
// who have concepts due. It returns how many reminders were sent.
func (s *Scheduler) CheckAndSendReminders(ctx context.Context) (int, error) {
	currentHour := s.now().In(s.location).Hour()

	if !s.InWindow(currentHour) {
		s.logger.Debug("outside notification hours, skipping reminders",
			zap.Int("hour", currentHour),
		)
		return 0, nil
	}

	users, err := s.users.GetUsersForNotification(ctx, currentHour)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get users for notification")
	}

	sent := 0
	for _, user := range users {
		ok, err := s.remind(ctx, user.ID)
		if err != nil {
			s.logger.Warn("reminder not sent", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// RunManualCheck forces a check for a specific user
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) (bool, error) {
	return s.remind(ctx, userID)
}

func (s *Scheduler) remind(ctx context.Context, userID int64) (bool, error) {
	count, err := s.due.DueCount(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "failed to count due concepts")
	}
	if count == 0 {
		return false, nil
	}

	if err := s.notifier.SendReminder(ctx, userID, count); err != nil {
		return false, errors.Wrap(err, "failed to send reminder")
	}
	s.metrics.ObserveReminderSent()
	s.logger.Info("reminder sent", zap.Int64("user_id", userID), zap.Int("due", count))
	return true, nil
}
