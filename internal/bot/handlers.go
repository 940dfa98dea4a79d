package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/juliomeza/memory-card/internal/excel"
	"github.com/juliomeza/memory-card/internal/review"
	"github.com/juliomeza/memory-card/pkg/models"
)

// Constants for callback data
const (
	callbackCategories = "categories"
	callbackCategory   = "cat:"
	callbackFlip       = "flip"
	callbackRemembered = "remembered"
	callbackForgot     = "forgot"
	callbackNext       = "next"
	callbackStats      = "stats"
)

var tierStars = map[string]string{
	"bronze":   "🥉",
	"silver":   "🥈",
	"gold":     "🥇",
	"sapphire": "💎",
	"titanium": "🏆",
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			b.handleStart(ctx, message)
		case "categories", "review":
			b.showCategories(ctx, chatID)
		case "stats":
			b.showStats(ctx, chatID, userID)
		case "notify":
			b.handleNotify(ctx, message)
		case "import":
			if !b.isAdmin(userID) {
				b.reply(chatID, "This command is only available for administrators.")
				return
			}
			b.setAwaitingUpload(userID, true)
			b.reply(chatID, "Send the concepts file as a document (.xlsx, .csv or .json).")
		case "remind":
			if !b.isAdmin(userID) {
				b.reply(chatID, "This command is only available for administrators.")
				return
			}
			b.handleRemind(ctx, message)
		case "cancel":
			b.setAwaitingUpload(userID, false)
			b.reviewer.End(userID)
			b.reply(chatID, "Cancelled.")
		default:
			b.reply(chatID, "Unknown command. Use /categories to start reviewing.")
		}
		return
	}

	if message.Document != nil && b.isAwaitingUpload(userID) {
		b.handleUpload(ctx, message)
		return
	}

	b.reply(chatID, "I don't understand. Use /categories to start reviewing.")
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	user := &models.User{
		ID:                  message.From.ID,
		Username:            message.From.UserName,
		FirstName:           message.From.FirstName,
		NotificationEnabled: true,
		NotificationHour:    9,
	}
	if err := b.users.Create(ctx, user); err != nil {
		b.logger.Error("failed to register user", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	text := fmt.Sprintf("Welcome, %s! 🎓\n\n"+
		"Pick a category and go through its cards five at a time. "+
		"Flip each card, then tell me whether you remembered it. "+
		"Cards you forget come back until you get them right.\n\n"+
		"/categories - choose what to review\n"+
		"/stats - your progress\n"+
		"/notify on|off|<hour> - daily reminders", displayName(message.From))
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "📚 Categories", CallbackData: callbackCategories}},
		{{Text: "📊 Stats", CallbackData: callbackStats}},
	})
	b.send(msg)
}

// handleNotify turns reminders on or off, or moves them to another hour (UTC)
func (b *Bot) handleNotify(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load user", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "Please send /start first.")
		return
	}

	enabled, hour := user.NotificationEnabled, user.NotificationHour
	switch arg := strings.ToLower(strings.TrimSpace(message.CommandArguments())); arg {
	case "":
		b.reply(chatID, notifyText(enabled, hour)+"\n\nUsage: /notify on|off|<hour 0-23>")
		return
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		h, err := strconv.Atoi(arg)
		if err != nil || h < 0 || h > 23 {
			b.reply(chatID, "Usage: /notify on|off|<hour 0-23>")
			return
		}
		enabled, hour = true, h
	}

	if err := b.users.UpdateNotifications(ctx, userID, enabled, hour); err != nil {
		b.logger.Error("failed to update notifications", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "❌ Could not update your reminder settings.")
		return
	}
	b.reply(chatID, notifyText(enabled, hour))
}

// handleRemind runs the reminder check for one user, the sender by default
func (b *Bot) handleRemind(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	checker := b.reminderChecker()
	if checker == nil {
		b.reply(chatID, "Reminders are not running.")
		return
	}

	target := message.From.ID
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			b.reply(chatID, "Usage: /remind [user ID]")
			return
		}
		target = id
	}

	sent, err := checker.RunManualCheck(ctx, target)
	switch {
	case err != nil:
		b.logger.Error("manual reminder failed", zap.Int64("user_id", target), zap.Error(err))
		b.reply(chatID, "❌ Reminder failed: "+err.Error())
	case sent:
		b.reply(chatID, fmt.Sprintf("Reminder sent to %d.", target))
	default:
		b.reply(chatID, fmt.Sprintf("Nothing is due for %d.", target))
	}
}

func (b *Bot) showCategories(ctx context.Context, chatID int64) {
	categories, err := b.reviewer.Categories(ctx)
	if err != nil {
		b.logger.Error("failed to list categories", zap.Error(err))
		b.reply(chatID, "❌ Could not load categories. Please try again.")
		return
	}
	if len(categories) == 0 {
		b.reply(chatID, "There are no concepts yet.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, "Choose a category:")
	msg.ReplyMarkup = categoryKeyboard(categories)
	b.send(msg)
}

func (b *Bot) showStats(ctx context.Context, chatID, userID int64) {
	stats, err := b.reviewer.Stats(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load stats", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "❌ Could not load your statistics.")
		return
	}
	b.reply(chatID, statsText(stats))
}

func (b *Bot) handleUpload(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	b.setAwaitingUpload(message.From.ID, false)

	format, err := excel.FormatFromName(message.Document.FileName)
	if err != nil {
		b.reply(chatID, "❌ Unsupported file. Send an .xlsx, .csv or .json file.")
		return
	}

	body, err := b.download(ctx, message.Document.FileID)
	if err != nil {
		b.logger.Error("upload download failed", zap.Error(err))
		b.reply(chatID, "❌ Could not download the file.")
		return
	}
	defer body.Close()

	result, err := b.importer.Import(ctx, body, format)
	if err != nil {
		b.logger.Error("import failed", zap.Error(err))
		b.reply(chatID, "❌ Import failed: "+err.Error())
		return
	}
	b.reply(chatID, importText(result))
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if _, err := b.client().Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}
	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}

	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	switch data := callback.Data; {
	case data == callbackCategories:
		b.showCategories(ctx, chatID)
	case data == callbackStats:
		b.showStats(ctx, chatID, userID)
	case strings.HasPrefix(data, callbackCategory):
		b.beginCategory(ctx, chatID, userID, strings.TrimPrefix(data, callbackCategory))
	case data == callbackFlip:
		view, err := b.reviewer.Current(userID)
		if err != nil {
			b.handleReviewError(chatID, userID, err)
			return
		}
		b.send(answerMessage(chatID, view))
	case data == callbackRemembered, data == callbackForgot:
		view, err := b.reviewer.Answer(ctx, userID, data == callbackRemembered)
		if !b.checkView(chatID, userID, view, err) {
			return
		}
		b.showView(chatID, view)
	case data == callbackNext:
		view, err := b.reviewer.Next(ctx, userID)
		if !b.checkView(chatID, userID, view, err) {
			return
		}
		b.showView(chatID, view)
	}
}

// beginCategory starts a session; the callback carries the category's index
// because Telegram limits callback data to 64 bytes
func (b *Bot) beginCategory(ctx context.Context, chatID, userID int64, indexStr string) {
	categories, err := b.reviewer.Categories(ctx)
	if err != nil {
		b.logger.Error("failed to list categories", zap.Error(err))
		b.reply(chatID, "❌ Could not load categories. Please try again.")
		return
	}
	idx, err := strconv.Atoi(indexStr)
	if err != nil || idx < 0 || idx >= len(categories) {
		b.reply(chatID, "That category no longer exists. Use /categories to pick again.")
		return
	}

	view, err := b.reviewer.Begin(ctx, userID, categories[idx])
	if !b.checkView(chatID, userID, view, err) {
		return
	}
	b.showView(chatID, view)
}

// checkView reports whether view can be shown. Persistence errors still
// come with a view and are only logged.
func (b *Bot) checkView(chatID, userID int64, view *review.View, err error) bool {
	if err == nil {
		return true
	}
	var perr *review.PersistenceError
	if errors.As(err, &perr) && view != nil {
		b.logger.Warn("progress not saved", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}
	b.handleReviewError(chatID, userID, err)
	return false
}

func (b *Bot) handleReviewError(chatID, userID int64, err error) {
	if errors.Is(err, review.ErrNoSession) {
		b.reply(chatID, "No review in progress. Use /categories to start one.")
		return
	}
	b.logger.Error("review failed", zap.Int64("user_id", userID), zap.Error(err))
	b.reply(chatID, "❌ Something went wrong. Please try again.")
}

func (b *Bot) showView(chatID int64, view *review.View) {
	switch {
	case view.Empty:
		msg := tgbotapi.NewMessage(chatID, "🎉 Nothing to review in "+categoryName(view.GroupKey)+" right now.")
		msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📚 Categories", CallbackData: callbackCategories}}})
		b.send(msg)
	case view.LevelComplete:
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("🏁 You finished every due card in %s (%d/%d batches).",
			categoryName(view.GroupKey), view.Group.Completed, view.Group.Total))
		msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📚 Categories", CallbackData: callbackCategories}}})
		b.send(msg)
	case view.BatchComplete:
		b.send(batchCompleteMessage(chatID, view))
	default:
		b.send(promptMessage(chatID, view))
	}
}

func promptMessage(chatID int64, view *review.View) tgbotapi.MessageConfig {
	text := fmt.Sprintf("%s · batch %d/%d · %d/%d\n\n%s",
		categoryName(view.GroupKey), view.BatchIndex+1, view.BatchCount, view.CorrectCount, view.BatchSize,
		view.Concept.Text)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "🔄 Flip", CallbackData: callbackFlip}}})
	return msg
}

func answerMessage(chatID int64, view *review.View) tgbotapi.MessageConfig {
	explanation := view.Concept.Explanation
	if explanation == "" {
		explanation = "(no explanation)"
	}
	msg := tgbotapi.NewMessage(chatID, view.Concept.Text+"\n\n"+explanation)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{
		{Text: "✅ Remembered", CallbackData: callbackRemembered},
		{Text: "❌ Forgot", CallbackData: callbackForgot},
	}})
	return msg
}

func batchCompleteMessage(chatID int64, view *review.View) tgbotapi.MessageConfig {
	text := fmt.Sprintf("%s Batch %d complete after %d answers! You earned a %s star.\nProgress in %s: %d/%d",
		tierStars[view.Tier], view.BatchIndex+1, view.Answered, view.Tier,
		categoryName(view.GroupKey), view.Group.Completed, view.Group.Total)

	buttons := [][]MenuButton{}
	if view.HasNextBatch {
		buttons = append(buttons, []MenuButton{{Text: "➡️ Next batch", CallbackData: callbackNext}})
	} else {
		text += "\n\nThat was the last batch for now."
	}
	buttons = append(buttons, []MenuButton{{Text: "📚 Categories", CallbackData: callbackCategories}})

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(buttons)
	return msg
}

func categoryKeyboard(categories []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]MenuButton, 0, len(categories))
	for i, c := range categories {
		rows = append(rows, []MenuButton{{Text: categoryName(c), CallbackData: callbackCategory + strconv.Itoa(i)}})
	}
	return createKeyboard(rows)
}

// categoryName strips the ordering prefix from a "N|name" key
func categoryName(key string) string {
	if _, name, ok := strings.Cut(key, "|"); ok && name != "" {
		return name
	}
	return key
}

func displayName(u *tgbotapi.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return u.UserName
	}
	return "there"
}

func reminderText(due int) string {
	noun := "concepts"
	if due == 1 {
		noun = "concept"
	}
	return fmt.Sprintf("⏰ You have %d %s to review!", due, noun)
}

func notifyText(enabled bool, hour int) string {
	if !enabled {
		return "🔕 Reminders are off."
	}
	return fmt.Sprintf("🔔 Reminders are on at %02d:00 UTC.", hour)
}

func statsText(s *review.Stats) string {
	var sb strings.Builder
	sb.WriteString("📊 Your progress\n\n")
	fmt.Fprintf(&sb, "Concepts: %d\n", s.TotalConcepts)
	fmt.Fprintf(&sb, "Reviewed: %d\n", s.Attempted)
	fmt.Fprintf(&sb, "Due now: %d\n", s.Due)
	fmt.Fprintf(&sb, "Accuracy: %.0f%% (%d/%d)\n", s.Accuracy, s.CorrectAttempts, s.TotalAttempts)
	if len(s.Groups) > 0 {
		sb.WriteString("\nBatches completed:\n")
		for _, g := range s.Groups {
			fmt.Fprintf(&sb, "• %s: %d/%d\n", categoryName(g.GroupKey), g.Completed, g.Total)
		}
	}
	return sb.String()
}

func importText(r *excel.ImportResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Imported %d of %d concepts.", r.Imported, r.TotalProcessed)
	if r.Skipped > 0 {
		fmt.Fprintf(&sb, " Skipped %d.", r.Skipped)
	}
	const maxErrors = 10
	for i, e := range r.Errors {
		if i == maxErrors {
			fmt.Fprintf(&sb, "\n…and %d more", len(r.Errors)-maxErrors)
			break
		}
		sb.WriteString("\n" + e)
	}
	return sb.String()
}
