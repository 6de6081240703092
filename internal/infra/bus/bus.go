package bus

import "sync"

// Handler обрабатывает полезную нагрузку события.
type Handler func(payload any)

// Subscription идентифицирует подписку для последующего Off.
type Subscription struct {
	event string
	id    int
}

type entry struct {
	id int
	fn Handler
}

// Bus — внутрипроцессная шина событий с синхронной доставкой.
// Обработчики вызываются в порядке регистрации; подписчики, добавленные
// после Emit, событие задним числом не получают. Других гарантий доставки нет.
type Bus struct {
	mu   sync.Mutex
	seq  int
	subs map[string][]entry
}

// New создаёт шину.
func New() *Bus {
	return &Bus{subs: make(map[string][]entry)}
}

// On регистрирует обработчик события.
func (b *Bus) On(event string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.subs[event] = append(b.subs[event], entry{id: b.seq, fn: fn})
	return Subscription{event: event, id: b.seq}
}

// Off снимает подписку. Повторный Off той же подписки безопасен.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subs[sub.event]
	for i, e := range entries {
		if e.id == sub.id {
			b.subs[sub.event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit синхронно доставляет событие всем текущим подписчикам.
// Список обработчиков копируется под блокировкой, сами вызовы идут без неё,
// поэтому обработчик может регистрировать и снимать подписки.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	entries := append([]entry(nil), b.subs[event]...)
	b.mu.Unlock()
	for _, e := range entries {
		e.fn(payload)
	}
}
