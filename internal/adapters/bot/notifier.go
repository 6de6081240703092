package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/metrics"
)

// Notifier доставляет события достижений из очереди в чат пользователя.
type Notifier struct {
	bot  *tgbotapi.BotAPI
	log  zerolog.Logger
	jobs domain.MilestoneQueue
}

// NewNotifier создаёт нотификатор.
func NewNotifier(bot *tgbotapi.BotAPI, log zerolog.Logger, jobs domain.MilestoneQueue) *Notifier {
	return &Notifier{bot: bot, log: log, jobs: jobs}
}

// Run потребляет очередь до отмены контекста. Неотправленные сообщения
// возвращаются в очередь и будут доставлены повторно.
func (n *Notifier) Run(ctx context.Context) error {
	return n.jobs.Consume(ctx, func(job domain.MilestoneJob) error {
		msg := tgbotapi.NewMessage(job.TGUserID, FormatMilestone(job.Event))
		msg.ParseMode = tgbotapi.ModeHTML
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_milestone", strconv.FormatInt(job.TGUserID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			n.log.Error().Err(err).Int64("user", job.UserID).Str("key", job.Event.Key).Msg("не удалось доставить достижение")
			return err
		}
		return nil
	})
}
