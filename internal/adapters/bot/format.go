package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/usecase/stats"
)

const messageLimit = 4096

var weekdayNames = [7]string{"воскресенье", "понедельник", "вторник", "среда", "четверг", "пятница", "суббота"}

var timeOfDayNames = map[domain.TimeOfDay]string{
	domain.TimeMorning:   "утро",
	domain.TimeAfternoon: "день",
	domain.TimeEvening:   "вечер",
}

var intentNames = map[domain.Intent]string{
	domain.IntentStudy:    "учёба",
	domain.IntentRelax:    "отдых",
	domain.IntentResearch: "исследование",
	domain.IntentHabit:    "привычка",
}

// FormatSnapshot формирует текстовое представление снимка для отправки пользователю.
func FormatSnapshot(s domain.AggregateSnapshot) string {
	var b strings.Builder
	b.WriteString("📊 <b>Статистика чтения</b>\n\n")
	b.WriteString(fmt.Sprintf("Сегодня: %s\n", formatDuration(s.TodaySeconds)))
	b.WriteString(fmt.Sprintf("За неделю: %s\n", formatDuration(s.WeekSeconds)))
	b.WriteString(fmt.Sprintf("За месяц: %s\n", formatDuration(s.MonthSeconds)))
	b.WriteString(fmt.Sprintf("Всего: %s за %d сессий\n", formatDuration(s.LifetimeSeconds), s.SessionCount))
	b.WriteString(fmt.Sprintf("Средняя сессия: %s, самая долгая: %s\n", formatDuration(s.AvgSessionSeconds), formatDuration(s.LongestSessionSeconds)))
	b.WriteString(fmt.Sprintf("Страниц: %d (%.1f в день, %.1f в час)\n", s.TotalPages, s.PagesPerDay, s.PagesPerHour))
	b.WriteString(fmt.Sprintf("Книги: %d завершено, %d в процессе\n", s.BooksFinished, s.BooksReading))

	if s.Streak > 0 {
		b.WriteString(fmt.Sprintf("\n🔥 Серия: %d %s подряд\n", s.Streak, pluralDays(s.Streak)))
	}
	if s.SessionCount > 0 {
		b.WriteString(fmt.Sprintf("Лучший день: %s, лучшее время: %s\n", weekdayNames[int(s.BestWeekday)], timeOfDayNames[s.BestTimeOfDay]))
	}

	if len(s.Tags) > 0 {
		b.WriteString("\n🏷 <b>По тегам</b>\n")
		tags := make([]string, 0, len(s.Tags))
		for tag := range s.Tags {
			tags = append(tags, tag)
		}
		sort.Slice(tags, func(i, j int) bool {
			if s.Tags[tags[i]].Seconds != s.Tags[tags[j]].Seconds {
				return s.Tags[tags[i]].Seconds > s.Tags[tags[j]].Seconds
			}
			return tags[i] < tags[j]
		})
		for _, tag := range tags {
			bucket := s.Tags[tag]
			b.WriteString(fmt.Sprintf("- %s — %s, %d%%\n", html.EscapeString(tag), formatDuration(bucket.Seconds), bucket.Percent))
		}
	}

	var intentLines []string
	for _, intent := range domain.Intents {
		bucket, ok := s.Intents[intent]
		if !ok {
			continue
		}
		intentLines = append(intentLines, fmt.Sprintf("- %s — %s, %d%%", intentNames[intent], formatDuration(bucket.Seconds), bucket.Percent))
	}
	if len(intentLines) > 0 {
		b.WriteString("\n🎯 <b>По целям</b>\n")
		b.WriteString(strings.Join(intentLines, "\n"))
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

// FormatMilestone формирует уведомление о достижении.
func FormatMilestone(event domain.MilestoneEvent) string {
	return "🏆 <b>Новое достижение!</b>\n" + html.EscapeString(event.Message)
}

func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0 мин"
	}
	minutes := seconds / 60
	hours := minutes / 60
	minutes -= hours * 60
	if hours == 0 {
		return fmt.Sprintf("%d мин", minutes)
	}
	if minutes == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, minutes)
}

func pluralDays(n int) string {
	n = n % 100
	if n >= 11 && n <= 14 {
		return "дней"
	}
	switch n % 10 {
	case 1:
		return "день"
	case 2, 3, 4:
		return "дня"
	default:
		return "дней"
	}
}

var errBadReadArgs = errors.New("некорректные аргументы команды /read")

// parseReadCommand разбирает "/read <минуты> [страницы] [цель]".
func parseReadCommand(payload string) (stats.RawSession, error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return stats.RawSession{}, errBadReadArgs
	}
	minutes, err := strconv.Atoi(fields[0])
	if err != nil || minutes <= 0 {
		return stats.RawSession{}, errBadReadArgs
	}
	raw := stats.RawSession{DurationMinutes: minutes}
	if len(fields) > 1 {
		pages, err := strconv.Atoi(fields[1])
		if err != nil || pages < 0 {
			return stats.RawSession{}, errBadReadArgs
		}
		raw.PagesRead = pages
	}
	if len(fields) > 2 {
		intent := domain.Intent(strings.ToLower(fields[2]))
		if !intent.Valid() {
			return stats.RawSession{}, errBadReadArgs
		}
		raw.Intent = string(intent)
	}
	return raw, nil
}

// splitMessage режет текст на части в пределах лимита Telegram,
// предпочитая границы строк, чтобы блоки не рвались посередине.
func splitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			chunk := strings.Trim(string(runes[start:]), "\n")
			if chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := -1
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if split == -1 {
			split = end
		}

		chunk := strings.Trim(string(runes[start:split]), "\n")
		if chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}

	return parts
}
