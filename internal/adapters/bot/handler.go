package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/metrics"
	"reading-stats-bot/internal/usecase/stats"
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot     *tgbotapi.BotAPI
	log     zerolog.Logger
	statsUC *stats.Service
	users   domain.UserRepo
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, statsUC *stats.Service, users domain.UserRepo) *Handler {
	return &Handler{bot: bot, log: log, statsUC: statsUC, users: users}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(ctx, msg)
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage(), h.mainKeyboard())
	case strings.HasPrefix(text, "/read"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/read"))
		h.handleRead(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/streak"):
		h.handleStreak(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/milestones"):
		h.handleMilestones(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/refresh"):
		h.handleRefresh(ctx, msg.Chat.ID, msg.From.ID)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	locale := msg.From.LanguageCode
	if _, err := h.users.UpsertByTGID(msg.From.ID, locale, ""); err != nil {
		h.reply(msg.Chat.ID, fmt.Sprintf("Ошибка сохранения профиля: %v", err), nil)
		return
	}
	message := []string{
		"Привет! Я считаю вашу статистику чтения.",
		"",
		"Записывайте сессии командой /read <минуты> [страницы],",
		"а /stats покажет итоги, серии и достижения.",
	}
	h.reply(msg.Chat.ID, strings.Join(message, "\n"), h.mainKeyboard())
}

func (h *Handler) buildHelpMessage() string {
	return strings.Join([]string{
		"Команды:",
		"/read 30 12 — записать сессию: 30 минут, 12 страниц",
		"/read 30 12 study — с целью (study, relax, research, habit)",
		"/stats — статистика чтения",
		"/streak — текущая серия",
		"/milestones — достижения",
		"/refresh — пересчитать статистику",
	}, "\n")
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", "stats_now"),
			tgbotapi.NewInlineKeyboardButtonData("🔥 Серия", "streak_now"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏆 Достижения", "milestones_now"),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить", "refresh_now"),
		),
	)
	return &markup
}

func (h *Handler) handleRead(ctx context.Context, chatID, tgUserID int64, payload string) {
	raw, err := parseReadCommand(payload)
	if err != nil {
		h.reply(chatID, "Формат: /read <минуты> [страницы] [цель]. Пример: /read 30 12 study", nil)
		return
	}
	user, err := h.resolveUser(chatID, tgUserID)
	if err != nil {
		return
	}
	session, err := h.statsUC.RecordSession(ctx, user.ID, raw)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось сохранить сессию: %v", err), nil)
		return
	}
	text := fmt.Sprintf("Записано: %s", formatDuration(session.DurationSeconds))
	if session.PagesRead > 0 {
		text += fmt.Sprintf(", %d страниц", session.PagesRead)
	}
	h.reply(chatID, text, h.mainKeyboard())
}

func (h *Handler) handleStats(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.resolveUser(chatID, tgUserID)
	if err != nil {
		return
	}
	snapshot, err := h.statsUC.Snapshot(ctx, user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось получить снимок")
		h.reply(chatID, "Не удалось получить статистику. Попробуйте позже", nil)
		return
	}
	h.reply(chatID, FormatSnapshot(snapshot), h.mainKeyboard())
}

func (h *Handler) handleStreak(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.resolveUser(chatID, tgUserID)
	if err != nil {
		return
	}
	snapshot, err := h.statsUC.Snapshot(ctx, user.ID)
	if err != nil {
		h.reply(chatID, "Не удалось получить статистику. Попробуйте позже", nil)
		return
	}
	if snapshot.Streak == 0 {
		h.reply(chatID, "Серия прервана. Почитайте сегодня, чтобы начать новую!", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("🔥 Серия: %d %s подряд", snapshot.Streak, pluralDays(snapshot.Streak)), nil)
}

func (h *Handler) handleMilestones(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.resolveUser(chatID, tgUserID)
	if err != nil {
		return
	}
	records, err := h.statsUC.Milestones(ctx, user.ID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить достижения: %v", err), nil)
		return
	}
	if len(records) == 0 {
		h.reply(chatID, "Достижений пока нет. Всё впереди!", nil)
		return
	}
	var b strings.Builder
	b.WriteString("🏆 Ваши достижения:\n")
	for _, record := range records {
		b.WriteString(fmt.Sprintf("- %s — %s\n", record.Key, record.AchievedAt.Format("02.01.2006")))
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleRefresh(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.resolveUser(chatID, tgUserID)
	if err != nil {
		return
	}
	snapshot, err := h.statsUC.Refresh(ctx, user.ID, domain.RefreshCauseManual)
	if err != nil {
		h.reply(chatID, "Не удалось пересчитать статистику. Попробуйте позже", nil)
		return
	}
	h.reply(chatID, FormatSnapshot(snapshot), h.mainKeyboard())
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	switch cb.Data {
	case "stats_now":
		h.handleStats(ctx, cb.Message.Chat.ID, cb.From.ID)
	case "streak_now":
		h.handleStreak(ctx, cb.Message.Chat.ID, cb.From.ID)
	case "milestones_now":
		h.handleMilestones(ctx, cb.Message.Chat.ID, cb.From.ID)
	case "refresh_now":
		h.handleRefresh(ctx, cb.Message.Chat.ID, cb.From.ID)
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) resolveUser(chatID, tgUserID int64) (domain.User, error) {
	user, err := h.users.GetByTGID(tgUserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			h.reply(chatID, "Сначала отправьте /start", nil)
		} else {
			h.reply(chatID, fmt.Sprintf("Не удалось получить профиль: %v", err), nil)
		}
		return domain.User{}, err
	}
	return user, nil
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := splitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if keyboard != nil && i == len(parts)-1 {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
			return
		}
	}
}
