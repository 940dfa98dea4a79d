package bot

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/juliomeza/memory-card/internal/excel"
	"github.com/juliomeza/memory-card/internal/logging"
	"github.com/juliomeza/memory-card/internal/review"
	"github.com/juliomeza/memory-card/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Reviewer runs review sessions
type Reviewer interface {
	Begin(ctx context.Context, userID int64, groupKey string) (*review.View, error)
	Answer(ctx context.Context, userID int64, correct bool) (*review.View, error)
	Next(ctx context.Context, userID int64) (*review.View, error)
	Current(userID int64) (*review.View, error)
	End(userID int64)
	Categories(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, userID int64) (*review.Stats, error)
}

// UserStore registers Telegram users and their reminder settings
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateNotifications(ctx context.Context, id int64, enabled bool, hour int) error
}

// Importer loads uploaded concept files
type Importer interface {
	Import(ctx context.Context, r io.Reader, format excel.Format) (*excel.ImportResult, error)
}

// ReminderChecker sends a reminder on demand
type ReminderChecker interface {
	RunManualCheck(ctx context.Context, userID int64) (bool, error)
}

// sender is the part of the Telegram API the bot talks to
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	token      string
	reviewer   Reviewer
	users      UserStore
	importer   Importer
	admins     map[int64]bool
	httpClient *http.Client
	logger     *zap.Logger

	// mu guards api, reminders and awaitingUpload
	mu             sync.Mutex
	api            sender
	reminders      ReminderChecker
	awaitingUpload map[int64]bool
}

// New creates a new bot instance
func New(token string, reviewer Reviewer, users UserStore, importer Importer, adminIDs []int64, logger *zap.Logger) (*Bot, error) {
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}

	b := &Bot{
		token:          token,
		reviewer:       reviewer,
		users:          users,
		importer:       importer,
		admins:         make(map[int64]bool, len(adminIDs)),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logging.OrNop(logger).Named("bot"),
		awaitingUpload: make(map[int64]bool),
	}
	for _, id := range adminIDs {
		b.admins[id] = true
	}
	return b, nil
}

// Run connects to Telegram and handles updates until ctx is done
func (b *Bot) Run(ctx context.Context) error {
	botAPI, err := tgbotapi.NewBotAPI(b.token)
	if err != nil {
		return errors.Wrap(err, "unable to create bot")
	}
	b.logger.Info("authorized", zap.String("account", botAPI.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := botAPI.GetUpdatesChan(updateConfig)
	defer botAPI.StopReceivingUpdates()

	return b.serve(ctx, botAPI, updates)
}

// serve dispatches updates received through api until ctx is done or the
// channel closes
func (b *Bot) serve(ctx context.Context, api sender, updates tgbotapi.UpdatesChannel) error {
	b.setAPI(api)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// SendReminder tells a user how many concepts are waiting for review
func (b *Bot) SendReminder(_ context.Context, userID int64, due int) error {
	api := b.client()
	if api == nil {
		return errors.New("bot is not running")
	}
	// In private chats the chat ID equals the user ID.
	msg := tgbotapi.NewMessage(userID, reminderText(due))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📚 Review now", CallbackData: callbackCategories}}})
	_, err := api.Send(msg)
	return err
}

// SetReminderChecker enables the /remind admin command
func (b *Bot) SetReminderChecker(r ReminderChecker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reminders = r
}

func (b *Bot) reminderChecker() ReminderChecker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reminders
}

func (b *Bot) setAPI(api sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.api = api
}

// client returns the Telegram API handle, nil until the bot is connected
func (b *Bot) client() sender {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.api
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

func (b *Bot) setAwaitingUpload(userID int64, waiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if waiting {
		b.awaitingUpload[userID] = true
	} else {
		delete(b.awaitingUpload, userID)
	}
}

func (b *Bot) isAwaitingUpload(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingUpload[userID]
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.client().Send(c); err != nil {
		b.logger.Warn("failed to send message", zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()

	switch {
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// download fetches an uploaded Telegram file
func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := b.client().GetFileDirectURL(fileID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build download request")
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download file")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
