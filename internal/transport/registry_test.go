package transport

import (
	"encoding/json"
	"testing"
)

func TestRegistry_OnOff(t *testing.T) {
	r := NewRegistry()

	var calls int
	sub := r.On(EventNewMessage, func(json.RawMessage) { calls++ })

	r.Dispatch(EventNewMessage, nil)
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}

	r.Off(sub)
	r.Dispatch(EventNewMessage, nil)
	if calls != 1 {
		t.Errorf("handler invoked after Off: %d calls", calls)
	}
}

func TestRegistry_DoubleRegistration(t *testing.T) {
	r := NewRegistry()

	// Registering the same function twice is two independent
	// subscriptions; each dispatch invokes it twice until one is removed.
	var calls int
	h := func(json.RawMessage) { calls++ }
	sub1 := r.On(EventNewMessage, h)
	sub2 := r.On(EventNewMessage, h)

	r.Dispatch(EventNewMessage, nil)
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}

	r.Off(sub1)
	r.Dispatch(EventNewMessage, nil)
	if calls != 3 {
		t.Errorf("expected 3 calls after removing one subscription, got %d", calls)
	}

	r.Off(sub2)
	r.Dispatch(EventNewMessage, nil)
	if calls != 3 {
		t.Errorf("expected no calls after removing both subscriptions, got %d", calls)
	}
}

func TestRegistry_OffDoesNotAffectOthers(t *testing.T) {
	r := NewRegistry()

	var first, second int
	sub := r.On(EventNewMessage, func(json.RawMessage) { first++ })
	r.On(EventNewMessage, func(json.RawMessage) { second++ })

	r.Off(sub)
	r.Dispatch(EventNewMessage, nil)

	if first != 0 {
		t.Errorf("removed handler invoked %d times", first)
	}
	if second != 1 {
		t.Errorf("remaining handler expected 1 call, got %d", second)
	}
}

func TestRegistry_RegisterDuringDispatch(t *testing.T) {
	r := NewRegistry()

	var late int
	r.On(EventNewMessage, func(json.RawMessage) {
		r.On(EventNewMessage, func(json.RawMessage) { late++ })
	})

	r.Dispatch(EventNewMessage, nil)
	if late != 0 {
		t.Errorf("handler registered during dispatch received the triggering event")
	}

	r.Dispatch(EventNewMessage, nil)
	if late != 1 {
		t.Errorf("late handler expected 1 call on next dispatch, got %d", late)
	}
}

func TestRegistry_OffDuringDispatch(t *testing.T) {
	r := NewRegistry()

	var calls int
	var second Subscription
	r.On(EventNewMessage, func(json.RawMessage) {
		r.Off(second)
	})
	second = r.On(EventNewMessage, func(json.RawMessage) { calls++ })

	r.Dispatch(EventNewMessage, nil)
	if calls != 0 {
		t.Errorf("handler removed during dispatch was still invoked")
	}
}

func TestRegistry_OffAll(t *testing.T) {
	r := NewRegistry()

	var calls int
	r.On(EventUserTyping, func(json.RawMessage) { calls++ })
	r.On(EventUserTyping, func(json.RawMessage) { calls++ })
	r.OffAll(EventUserTyping)

	r.Dispatch(EventUserTyping, nil)
	if calls != 0 {
		t.Errorf("handlers invoked after OffAll: %d calls", calls)
	}
}

func TestRegistry_DispatchOrder(t *testing.T) {
	r := NewRegistry()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		r.On(EventNewMessage, func(json.RawMessage) { order = append(order, i) })
	}

	r.Dispatch(EventNewMessage, nil)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected registration order 1,2,3, got %v", order)
	}
}

func TestRegistry_PayloadDelivered(t *testing.T) {
	r := NewRegistry()

	var got string
	r.On(EventUserTyping, func(data json.RawMessage) {
		var payload struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		got = payload.UserID
	})

	r.Dispatch(EventUserTyping, json.RawMessage(`{"userId":"u1"}`))
	if got != "u1" {
		t.Errorf("expected payload userId u1, got %q", got)
	}
}
