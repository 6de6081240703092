package stats

import (
	"encoding/json"
	"testing"
	"time"

	"reading-stats-bot/internal/domain"
)

func TestNormalizeDurationPrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  RawSession
		want int64
	}{
		{"только минуты", RawSession{DurationMinutes: float64(5)}, 300},
		{"секунды важнее минут", RawSession{DurationSeconds: float64(100), DurationMinutes: float64(5)}, 100},
		{"нулевые секунды уступают минутам", RawSession{DurationSeconds: float64(0), DurationMinutes: float64(2)}, 120},
		{"отрицательные секунды уступают минутам", RawSession{DurationSeconds: float64(-30), DurationMinutes: float64(1)}, 60},
		{"секунды строкой", RawSession{DurationSeconds: "450"}, 450},
		{"минуты как json.Number", RawSession{DurationMinutes: json.Number("3")}, 180},
		{"мусор даёт ноль", RawSession{DurationSeconds: "abc", DurationMinutes: "xyz"}, 0},
		{"пустая запись", RawSession{}, 0},
		{"дробные минуты", RawSession{DurationMinutes: 2.5}, 150},
		{"неожиданный тип", RawSession{DurationSeconds: []string{"1"}}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeDuration(tc.raw); got != tc.want {
				t.Fatalf("ожидали %d секунд, получили %d", tc.want, got)
			}
		})
	}
}

func TestNormalizeSession(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	session := NormalizeSession(42, RawSession{
		BookID:          7,
		CreatedAt:       "2025-03-09T08:30:00Z",
		DurationMinutes: float64(5),
		PagesRead:       float64(12),
		Intent:          "study",
	}, now)

	if session.UserID != 42 || session.BookID != 7 {
		t.Fatalf("идентификаторы должны сохраняться: %+v", session)
	}
	if session.DurationSeconds != 300 {
		t.Fatalf("ожидали 300 секунд, получили %d", session.DurationSeconds)
	}
	if session.PagesRead != 12 {
		t.Fatalf("ожидали 12 страниц, получили %d", session.PagesRead)
	}
	if session.Intent != domain.IntentStudy {
		t.Fatalf("ожидали цель study, получили %q", session.Intent)
	}
	want := time.Date(2025, 3, 9, 8, 30, 0, 0, time.UTC)
	if !session.CreatedAt.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, session.CreatedAt)
	}
}

func TestNormalizeSessionDegradesGracefully(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	session := NormalizeSession(1, RawSession{
		CreatedAt: "вчера",
		PagesRead: float64(-4),
		Intent:    "speedrun",
	}, now)

	if !session.CreatedAt.Equal(now) {
		t.Fatalf("нечитаемая дата должна заменяться текущим моментом, получили %v", session.CreatedAt)
	}
	if session.PagesRead != 0 {
		t.Fatalf("отрицательные страницы должны обнуляться, получили %d", session.PagesRead)
	}
	if session.Intent != "" {
		t.Fatalf("неизвестная цель должна отбрасываться, получили %q", session.Intent)
	}
	if session.DurationSeconds != 0 {
		t.Fatalf("пустая длительность — ноль, получили %d", session.DurationSeconds)
	}
}

func TestParseCreatedAtLayouts(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for raw, want := range map[string]time.Time{
		"2025-03-01T10:00:00Z": time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		"2025-03-01 10:00:00":  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		"2025-03-01":           time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		"":                     now,
	} {
		if got := parseCreatedAt(raw, now); !got.Equal(want) {
			t.Fatalf("для %q ожидали %v, получили %v", raw, want, got)
		}
	}
}
