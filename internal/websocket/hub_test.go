package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewEventDerivesType(t *testing.T) {
	ev := NewEvent(EntityIntake, "taken", 42, nil)
	if ev.Type != "intake_taken" {
		t.Errorf("type = %q, want intake_taken", ev.Type)
	}
	if ev.Entity != EntityIntake || ev.Action != "taken" || ev.ID != 42 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestPublishReachesRegisteredClients(t *testing.T) {
	h := testHub()
	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register(c)

	h.Publish(NewEvent(EntityMedication, "updated", 7, map[string]any{"low_stock": true}))

	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != "medication_updated" || ev.ID != 7 {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestPublishSkipsFullBuffers(t *testing.T) {
	h := testHub()
	c := &Client{hub: h, send: make(chan []byte)} // unbuffered, no reader
	h.register(c)

	// Publish must return despite the blocked client; the event is
	// dropped for it.
	h.Publish(NewEvent(EntityIntake, "created", 1, nil))
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := testHub()
	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register(c)
	if h.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", h.ClientCount())
	}

	h.unregister(c)
	if h.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", h.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel not closed")
	}

	// Double unregister is safe.
	h.unregister(c)
}
