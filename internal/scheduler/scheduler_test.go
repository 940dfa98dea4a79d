package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliomeza/memory-card/pkg/models"
)

type fakeUsers struct {
	byHour map[int][]models.User
	asked  []int
}

func (f *fakeUsers) GetUsersForNotification(_ context.Context, hour int) ([]models.User, error) {
	f.asked = append(f.asked, hour)
	return f.byHour[hour], nil
}

type fakeDue map[int64]int

func (f fakeDue) DueCount(_ context.Context, userID int64) (int, error) {
	n, ok := f[userID]
	if !ok {
		return 0, errors.New("unknown user")
	}
	return n, nil
}

type fakeNotifier struct {
	sent map[int64]int
	fail int64
}

func (f *fakeNotifier) SendReminder(_ context.Context, userID int64, due int) error {
	if userID == f.fail {
		return errors.New("blocked by user")
	}
	f.sent[userID] = due
	return nil
}

func at(hour int) func() time.Time {
	return func() time.Time { return time.Date(2025, 4, 2, hour, 30, 0, 0, time.UTC) }
}

func TestCheckAndSendReminders(t *testing.T) {
	users := &fakeUsers{byHour: map[int][]models.User{
		9: {{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
	}}
	due := fakeDue{1: 5, 2: 0, 4: 3}
	notifier := &fakeNotifier{sent: map[int64]int{}, fail: 4}

	s := New(users, due, notifier, Options{StartHour: 4, EndHour: 18, Clock: at(9)})
	sent, err := s.CheckAndSendReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	assert.Equal(t, map[int64]int{1: 5}, notifier.sent)
	assert.Equal(t, []int{9}, users.asked)
}

func TestCheckAndSendReminders_OutsideWindow(t *testing.T) {
	users := &fakeUsers{}
	s := New(users, fakeDue{}, &fakeNotifier{sent: map[int64]int{}}, Options{StartHour: 4, EndHour: 18, Clock: at(22)})

	sent, err := s.CheckAndSendReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, users.asked)
}

func TestInWindow(t *testing.T) {
	s := New(&fakeUsers{}, fakeDue{}, &fakeNotifier{}, Options{StartHour: DefaultNotificationStartHour, EndHour: DefaultNotificationEndHour})
	assert.False(t, s.InWindow(3))
	assert.True(t, s.InWindow(4))
	assert.True(t, s.InWindow(18))
	assert.False(t, s.InWindow(19))
}

func TestRunManualCheck(t *testing.T) {
	notifier := &fakeNotifier{sent: map[int64]int{}}
	s := New(&fakeUsers{}, fakeDue{7: 2, 8: 0}, notifier, Options{})

	ok, err := s.RunManualCheck(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RunManualCheck(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, map[int64]int{7: 2}, notifier.sent)
}

func TestRunStopsWithContext(t *testing.T) {
	s := New(&fakeUsers{}, fakeDue{}, &fakeNotifier{sent: map[int64]int{}}, Options{StartHour: 0, EndHour: 23})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
