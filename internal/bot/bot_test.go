package bot

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/juliomeza/memory-card/internal/excel"
	"github.com/juliomeza/memory-card/internal/review"
	"github.com/juliomeza/memory-card/pkg/models"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(string) (string, error) {
	return "", errors.New("no files in tests")
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeReviewer struct {
	categories []string
	began      string
	view       *review.View
	err        error
	answers    []bool
}

func (f *fakeReviewer) Begin(_ context.Context, _ int64, groupKey string) (*review.View, error) {
	f.began = groupKey
	return f.view, f.err
}

func (f *fakeReviewer) Answer(_ context.Context, _ int64, correct bool) (*review.View, error) {
	f.answers = append(f.answers, correct)
	return f.view, f.err
}

func (f *fakeReviewer) Next(context.Context, int64) (*review.View, error) { return f.view, f.err }
func (f *fakeReviewer) Current(int64) (*review.View, error)              { return f.view, f.err }
func (f *fakeReviewer) End(int64)                                        {}

func (f *fakeReviewer) Categories(context.Context) ([]string, error) {
	return f.categories, nil
}

func (f *fakeReviewer) Stats(context.Context, int64) (*review.Stats, error) {
	return &review.Stats{TotalConcepts: 10, Attempted: 4, TotalAttempts: 8, CorrectAttempts: 6, Accuracy: 75}, nil
}

type fakeUsers struct {
	created []models.User
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.created = append(f.created, *u)
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	for i := range f.created {
		if f.created[i].ID == id {
			u := f.created[i]
			return &u, nil
		}
	}
	return nil, errors.New("user not found")
}

func (f *fakeUsers) UpdateNotifications(_ context.Context, id int64, enabled bool, hour int) error {
	for i := range f.created {
		if f.created[i].ID == id {
			f.created[i].NotificationEnabled = enabled
			f.created[i].NotificationHour = hour
			return nil
		}
	}
	return errors.New("user not found")
}

type fakeImporter struct{}

func (fakeImporter) Import(context.Context, io.Reader, excel.Format) (*excel.ImportResult, error) {
	return &excel.ImportResult{}, nil
}

func newTestBot(t *testing.T, reviewer *fakeReviewer, logger *zap.Logger) (*Bot, *fakeSender, *fakeUsers) {
	t.Helper()
	users := &fakeUsers{}
	b, err := New("test-token", reviewer, users, fakeImporter{}, []int64{1}, logger)
	require.NoError(t, err)
	api := &fakeSender{}
	b.setAPI(api)
	return b, api, users
}

func command(userID int64, text string) *tgbotapi.Message {
	length := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		length = i
	}
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, FirstName: "Ana"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func promptView() *review.View {
	return &review.View{
		GroupKey:   "1|Networking",
		Concept:    models.Concept{ID: "a", Text: "TCP", Explanation: "Reliable stream"},
		HasConcept: true,
		BatchCount: 2,
		BatchSize:  5,
	}
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("", &fakeReviewer{}, &fakeUsers{}, fakeImporter{}, nil, nil)
	assert.Error(t, err)
}

func TestStartRegistersUser(t *testing.T) {
	b, api, users := newTestBot(t, &fakeReviewer{}, nil)

	b.handleMessage(context.Background(), command(42, "/start"))

	require.Len(t, users.created, 1)
	assert.Equal(t, int64(42), users.created[0].ID)
	assert.True(t, users.created[0].NotificationEnabled)
	assert.Contains(t, api.last(t).Text, "Welcome, Ana")
}

func TestNotifySettings(t *testing.T) {
	b, api, users := newTestBot(t, &fakeReviewer{}, nil)
	ctx := context.Background()

	b.handleMessage(ctx, command(42, "/notify"))
	assert.Equal(t, "Please send /start first.", api.last(t).Text)

	b.handleMessage(ctx, command(42, "/start"))
	b.handleMessage(ctx, command(42, "/notify off"))
	assert.Equal(t, "🔕 Reminders are off.", api.last(t).Text)
	assert.False(t, users.created[0].NotificationEnabled)

	b.handleMessage(ctx, command(42, "/notify 7"))
	assert.Equal(t, "🔔 Reminders are on at 07:00 UTC.", api.last(t).Text)
	assert.Equal(t, 7, users.created[0].NotificationHour)

	b.handleMessage(ctx, command(42, "/notify 25"))
	assert.Contains(t, api.last(t).Text, "Usage")
	assert.Equal(t, 7, users.created[0].NotificationHour)
}

type fakeChecker struct {
	users []int64
	due   bool
}

func (f *fakeChecker) RunManualCheck(_ context.Context, userID int64) (bool, error) {
	f.users = append(f.users, userID)
	return f.due, nil
}

func TestRemindCommand(t *testing.T) {
	b, api, _ := newTestBot(t, &fakeReviewer{}, nil)
	ctx := context.Background()

	b.handleMessage(ctx, command(1, "/remind"))
	assert.Equal(t, "Reminders are not running.", api.last(t).Text)

	checker := &fakeChecker{due: true}
	b.SetReminderChecker(checker)

	b.handleMessage(ctx, command(42, "/remind"))
	assert.Contains(t, api.last(t).Text, "only available for administrators")
	assert.Empty(t, checker.users)

	b.handleMessage(ctx, command(1, "/remind"))
	assert.Equal(t, "Reminder sent to 1.", api.last(t).Text)

	checker.due = false
	b.handleMessage(ctx, command(1, "/remind 42"))
	assert.Equal(t, "Nothing is due for 42.", api.last(t).Text)
	assert.Equal(t, []int64{1, 42}, checker.users)

	b.handleMessage(ctx, command(1, "/remind bob"))
	assert.Equal(t, "Usage: /remind [user ID]", api.last(t).Text)
}

func TestImportIsAdminOnly(t *testing.T) {
	b, api, _ := newTestBot(t, &fakeReviewer{}, nil)

	b.handleMessage(context.Background(), command(42, "/import"))
	assert.Contains(t, api.last(t).Text, "only available for administrators")
	assert.False(t, b.isAwaitingUpload(42))

	b.handleMessage(context.Background(), command(1, "/import"))
	assert.True(t, b.isAwaitingUpload(1))
}

func TestCategoriesKeyboardUsesIndexes(t *testing.T) {
	reviewer := &fakeReviewer{categories: []string{"1|Networking", "2|Storage"}}
	b, api, _ := newTestBot(t, reviewer, nil)

	b.handleMessage(context.Background(), command(42, "/categories"))

	markup, ok := api.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "Storage", markup.InlineKeyboard[1][0].Text)
	assert.Equal(t, "cat:1", *markup.InlineKeyboard[1][0].CallbackData)
}

func TestCategoryCallbackBeginsSession(t *testing.T) {
	reviewer := &fakeReviewer{categories: []string{"1|Networking", "2|Storage"}, view: promptView()}
	b, api, _ := newTestBot(t, reviewer, nil)

	b.handleCallbackQuery(context.Background(), callback(42, "cat:0"))

	assert.Equal(t, "1|Networking", reviewer.began)
	assert.Equal(t, 1, api.requests)
	msg := api.last(t)
	assert.Contains(t, msg.Text, "TCP")
	assert.Contains(t, msg.Text, "batch 1/2")
	assert.NotContains(t, msg.Text, "Reliable stream")
}

func TestUnknownCategoryIndex(t *testing.T) {
	reviewer := &fakeReviewer{categories: []string{"1|Networking"}}
	b, api, _ := newTestBot(t, reviewer, nil)

	b.handleCallbackQuery(context.Background(), callback(42, "cat:7"))

	assert.Empty(t, reviewer.began)
	assert.Contains(t, api.last(t).Text, "no longer exists")
}

func TestFlipShowsExplanation(t *testing.T) {
	b, api, _ := newTestBot(t, &fakeReviewer{view: promptView()}, nil)

	b.handleCallbackQuery(context.Background(), callback(42, callbackFlip))

	msg := api.last(t)
	assert.Contains(t, msg.Text, "Reliable stream")
	markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, callbackRemembered, *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, callbackForgot, *markup.InlineKeyboard[0][1].CallbackData)
}

func TestAnswerCallbacks(t *testing.T) {
	reviewer := &fakeReviewer{view: promptView()}
	b, _, _ := newTestBot(t, reviewer, nil)

	b.handleCallbackQuery(context.Background(), callback(42, callbackRemembered))
	b.handleCallbackQuery(context.Background(), callback(42, callbackForgot))

	assert.Equal(t, []bool{true, false}, reviewer.answers)
}

func TestPersistenceErrorStillShowsView(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	view := promptView()
	view.HasConcept = false
	view.BatchComplete = true
	view.HasNextBatch = true
	view.Tier = "bronze"
	view.Group = models.GroupProgress{Completed: 1, Total: 2}
	view.Answered = 7
	reviewer := &fakeReviewer{
		view: view,
		err:  &review.PersistenceError{Op: review.OpRecordAttempt, UserID: 42, Err: errors.New("disk full")},
	}
	b, api, _ := newTestBot(t, reviewer, zap.New(core))

	b.handleCallbackQuery(context.Background(), callback(42, callbackRemembered))

	msg := api.last(t)
	assert.Contains(t, msg.Text, "Batch 1 complete after 7 answers")
	assert.Contains(t, msg.Text, "bronze")
	assert.Contains(t, msg.Text, "1/2")
	assert.Equal(t, 1, logs.FilterMessage("progress not saved").Len())
}

func TestNoSessionReply(t *testing.T) {
	reviewer := &fakeReviewer{err: review.ErrNoSession}
	b, api, _ := newTestBot(t, reviewer, nil)

	b.handleCallbackQuery(context.Background(), callback(42, callbackNext))

	assert.Contains(t, api.last(t).Text, "No review in progress")
}

func TestLevelCompleteAndEmptyViews(t *testing.T) {
	b, api, _ := newTestBot(t, &fakeReviewer{}, nil)

	b.showView(42, &review.View{GroupKey: "1|Networking", Empty: true})
	assert.Contains(t, api.last(t).Text, "Nothing to review in Networking")

	b.showView(42, &review.View{GroupKey: "1|Networking", LevelComplete: true, Group: models.GroupProgress{Completed: 3, Total: 3}})
	assert.Contains(t, api.last(t).Text, "3/3 batches")
}

func TestSendReminder(t *testing.T) {
	b, api, _ := newTestBot(t, &fakeReviewer{}, nil)

	require.NoError(t, b.SendReminder(context.Background(), 42, 3))

	msg := api.last(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "⏰ You have 3 concepts to review!", msg.Text)

	b.setAPI(nil)
	assert.Error(t, b.SendReminder(context.Background(), 42, 3))
}

func TestTextHelpers(t *testing.T) {
	assert.Equal(t, "⏰ You have 1 concept to review!", reminderText(1))
	assert.Equal(t, "Networking", categoryName("1|Networking"))
	assert.Equal(t, "Loose", categoryName("Loose"))

	stats := statsText(&review.Stats{
		TotalConcepts: 10, Accuracy: 75, CorrectAttempts: 3, TotalAttempts: 4,
		Groups: []models.GroupProgress{{GroupKey: "2|Storage", Completed: 1, Total: 4}},
	})
	assert.Contains(t, stats, "Accuracy: 75% (3/4)")
	assert.Contains(t, stats, "Storage: 1/4")

	text := importText(&excel.ImportResult{TotalProcessed: 3, Imported: 2, Skipped: 1, Errors: []string{"row 3: missing concept"}})
	assert.True(t, strings.HasPrefix(text, "✅ Imported 2 of 3 concepts. Skipped 1."))
	assert.Contains(t, text, "row 3: missing concept")
}

func TestSendReminderWhileServing(t *testing.T) {
	reviewer := &fakeReviewer{}
	b, err := New("test-token", reviewer, &fakeUsers{}, fakeImporter{}, nil, nil)
	require.NoError(t, err)
	assert.Error(t, b.SendReminder(context.Background(), 42, 1), "not connected yet")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeSender{}
	updates := make(chan tgbotapi.Update)
	done := make(chan error, 1)
	go func() { done <- b.serve(ctx, api, updates) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.SendReminder(ctx, 42, 1)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return b.SendReminder(ctx, 42, 2) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "⏰ You have 2 concepts to review!", api.last(t).Text)

	updates <- tgbotapi.Update{CallbackQuery: callback(42, callbackStats)}
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.requests == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
