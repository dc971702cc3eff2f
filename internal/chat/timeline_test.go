package chat

import (
	"testing"

	"workchat/internal/models"
)

func assertOrdered(t *testing.T, msgs []models.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Fatalf("timeline not ordered at %d: %d < %d", i, msgs[i].Timestamp, msgs[i-1].Timestamp)
		}
	}
}

func TestTimeline_ResetNormalizesOrder(t *testing.T) {
	tl := NewTimeline("c1")
	tl.Reset([]models.Message{
		{ID: "m2", Timestamp: 200},
		{ID: "m1", Timestamp: 100},
		{ID: "m3", Timestamp: 300},
	})

	msgs := tl.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	assertOrdered(t, msgs)
	if msgs[0].ID != "m1" {
		t.Errorf("expected m1 first, got %s", msgs[0].ID)
	}
}

func TestTimeline_AppendLocalIsImmediate(t *testing.T) {
	tl := NewTimeline("c1")
	tl.AppendLocal(models.Message{
		ID: "temp-x", ClientID: "x", Content: "hello", Timestamp: 100, IsOwn: true,
	})

	msgs := tl.Messages()
	if len(msgs) != 1 {
		t.Fatalf("optimistic entry not visible")
	}
	if msgs[0].Delivery != models.DeliveryPending {
		t.Errorf("expected pending, got %s", msgs[0].Delivery)
	}
	if !msgs[0].IsOwn {
		t.Error("expected isOwn")
	}
}

func TestTimeline_OrderedInsertWithTies(t *testing.T) {
	tl := NewTimeline("c1")
	tl.Ingest(models.Message{ID: "a", Timestamp: 100})
	tl.Ingest(models.Message{ID: "b", Timestamp: 300})
	// Late arrival with an earlier timestamp lands between a and b.
	tl.Ingest(models.Message{ID: "c", Timestamp: 200})
	// Tie with c keeps insertion order: d after c.
	tl.Ingest(models.Message{ID: "d", Timestamp: 200})

	msgs := tl.Messages()
	assertOrdered(t, msgs)
	want := []string{"a", "c", "d", "b"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s (full: %v)", i, id, msgs[i].ID, ids(msgs))
		}
	}
}

func TestTimeline_ConfirmSupersedesTempIdentity(t *testing.T) {
	tl := NewTimeline("c1")
	tl.AppendLocal(models.Message{ID: "temp-x", ClientID: "x", Content: "hi", Timestamp: 100})

	if !tl.Confirm("x", models.Message{ID: "srv-1", Timestamp: 150}) {
		t.Fatal("Confirm failed")
	}

	msgs := tl.Messages()
	if len(msgs) != 1 {
		t.Fatalf("confirm duplicated the entry: %d messages", len(msgs))
	}
	if msgs[0].ID != "srv-1" || msgs[0].Delivery != models.DeliveryConfirmed || msgs[0].Timestamp != 150 {
		t.Errorf("unexpected confirmed entry: %+v", msgs[0])
	}

	// The server identity is now known; the echoed broadcast is suppressed.
	if tl.Ingest(models.Message{ID: "srv-1", Content: "hi", Timestamp: 150}) {
		t.Error("echo with confirmed server ID was appended")
	}
	if tl.Len() != 1 {
		t.Errorf("expected 1 message, got %d", tl.Len())
	}
}

func TestTimeline_IngestConfirmsByClientID(t *testing.T) {
	tl := NewTimeline("c1")
	tl.AppendLocal(models.Message{ID: "temp-x", ClientID: "x", Content: "hi", Timestamp: 100})

	appended := tl.Ingest(models.Message{ID: "srv-1", ClientID: "x", Content: "hi", Timestamp: 120})
	if appended {
		t.Error("echo with matching clientID was appended as new entry")
	}

	msgs := tl.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != "srv-1" || msgs[0].Delivery != models.DeliveryConfirmed {
		t.Errorf("optimistic entry not confirmed in place: %+v", msgs[0])
	}
}

func TestTimeline_EchoFallbackMatch(t *testing.T) {
	tl := NewTimeline("c1")
	tl.AppendLocal(models.Message{
		ID: "temp-x", ClientID: "x", SenderID: "u1", Content: "hi", Timestamp: 1000, IsOwn: true,
	})

	// Echo without correlation ID: matched by sender+content+timestamp window.
	appended := tl.Ingest(models.Message{
		ID: "srv-1", SenderID: "u1", Content: "hi", Timestamp: 2000, IsOwn: true,
	})
	if appended {
		t.Error("own echo without clientID was double-rendered")
	}
	if tl.Len() != 1 {
		t.Errorf("expected 1 message, got %d", tl.Len())
	}
}

func TestTimeline_EchoOutsideWindowAppends(t *testing.T) {
	tl := NewTimeline("c1")
	tl.AppendLocal(models.Message{
		ID: "temp-x", ClientID: "x", SenderID: "u1", Content: "hi", Timestamp: 1000, IsOwn: true,
	})

	// Same content much later is a genuine second message.
	appended := tl.Ingest(models.Message{
		ID: "srv-9", SenderID: "u1", Content: "hi", Timestamp: 1000 + echoWindowMillis + 1, IsOwn: true,
	})
	if !appended {
		t.Error("distinct later message was wrongly reconciled")
	}
	if tl.Len() != 2 {
		t.Errorf("expected 2 messages, got %d", tl.Len())
	}
}

func TestTimeline_FailIsTerminal(t *testing.T) {
	tl := NewTimeline("c1")
	tl.AppendLocal(models.Message{ID: "temp-x", ClientID: "x", Content: "hi", Timestamp: 100})

	if !tl.Fail("x") {
		t.Fatal("Fail did not find the pending entry")
	}
	if msgs := tl.Messages(); msgs[0].Delivery != models.DeliveryFailed {
		t.Errorf("expected failed state, got %s", msgs[0].Delivery)
	}

	// Terminal: neither Confirm nor a second Fail applies.
	if tl.Confirm("x", models.Message{ID: "srv-1"}) {
		t.Error("Confirm succeeded on a failed entry")
	}
	if tl.Fail("x") {
		t.Error("second Fail succeeded")
	}
}

func TestTimeline_ConcurrentSourcesKeepOrder(t *testing.T) {
	tl := NewTimeline("c1")
	tl.Reset([]models.Message{{ID: "h1", Timestamp: 100}})

	// Optimistic entry, then another participant's message arrives
	// while the send is in flight.
	tl.AppendLocal(models.Message{ID: "temp-x", ClientID: "x", SenderID: "me", Content: "ping", Timestamp: 200, IsOwn: true})
	tl.Ingest(models.Message{ID: "m2", SenderID: "u2", Content: "pong", Timestamp: 250})
	tl.Confirm("x", models.Message{ID: "srv-x", Timestamp: 210})

	msgs := tl.Messages()
	assertOrdered(t, msgs)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d (%v)", len(msgs), ids(msgs))
	}
	if msgs[1].ID != "srv-x" {
		t.Errorf("confirmed entry lost its position: %v", ids(msgs))
	}
}

func TestTimeline_IngestDuplicateServerID(t *testing.T) {
	tl := NewTimeline("c1")
	if !tl.Ingest(models.Message{ID: "m1", Timestamp: 100}) {
		t.Fatal("first ingest rejected")
	}
	if tl.Ingest(models.Message{ID: "m1", Timestamp: 100}) {
		t.Error("duplicate server ID appended")
	}
	if tl.Len() != 1 {
		t.Errorf("expected 1 message, got %d", tl.Len())
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
