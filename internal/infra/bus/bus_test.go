package bus

import "testing"

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.On("evt", func(any) { order = append(order, 1) })
	b.On("evt", func(any) { order = append(order, 2) })
	b.On("evt", func(any) { order = append(order, 3) })

	b.Emit("evt", nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("ожидали доставку в порядке регистрации, получили %v", order)
	}
}

func TestOffStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	sub := b.On("evt", func(any) { calls++ })
	b.Emit("evt", nil)
	b.Off(sub)
	b.Emit("evt", nil)
	b.Off(sub) // повторный Off безопасен

	if calls != 1 {
		t.Fatalf("ожидали ровно один вызов, получили %d", calls)
	}
}

func TestLateSubscriberMissesEarlierEmit(t *testing.T) {
	b := New()
	b.Emit("evt", nil)

	calls := 0
	b.On("evt", func(any) { calls++ })
	if calls != 0 {
		t.Fatal("подписчик не должен получать события задним числом")
	}
}

func TestEmitPassesPayload(t *testing.T) {
	b := New()
	var got any
	b.On("evt", func(payload any) { got = payload })
	b.Emit("evt", 42)
	if got != 42 {
		t.Fatalf("ожидали полезную нагрузку 42, получили %v", got)
	}
}

func TestHandlerMaySubscribeDuringEmit(t *testing.T) {
	b := New()
	nested := 0
	b.On("evt", func(any) {
		b.On("evt", func(any) { nested++ })
	})
	b.Emit("evt", nil)
	if nested != 0 {
		t.Fatal("вложенная подписка не должна срабатывать в текущем Emit")
	}
	b.Emit("evt", nil)
	if nested != 1 {
		t.Fatalf("ожидали один вложенный вызов, получили %d", nested)
	}
}
