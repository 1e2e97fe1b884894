package store

import (
	"testing"

	"github.com/dukerupert/medkeep/internal/database"
	"github.com/dukerupert/medkeep/internal/model"
)

func setupPushTestDB(t *testing.T) *PushStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPushStore(db)
}

func TestSubscriptionUpsert(t *testing.T) {
	ps := setupPushTestDB(t)

	sub, err := ps.Upsert(model.PushSubscription{
		DeviceID:  "device-a",
		Endpoint:  "https://push.example/ep1",
		P256dhKey: "p256-1",
		AuthKey:   "auth-1",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sub.ID == 0 {
		t.Fatal("expected assigned id")
	}

	// Re-subscribing the same endpoint rotates the keys, no new row.
	again, err := ps.Upsert(model.PushSubscription{
		DeviceID:  "device-a",
		Endpoint:  "https://push.example/ep1",
		P256dhKey: "p256-2",
		AuthKey:   "auth-2",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != sub.ID {
		t.Errorf("id changed on upsert: %d -> %d", sub.ID, again.ID)
	}
	if again.P256dhKey != "p256-2" {
		t.Errorf("p256dh = %q, want rotated key", again.P256dhKey)
	}

	subs, err := ps.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("len = %d, want 1", len(subs))
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ps := setupPushTestDB(t)

	if _, err := ps.Upsert(model.PushSubscription{DeviceID: "d", Endpoint: "https://push.example/gone", P256dhKey: "k", AuthKey: "a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ps.DeleteByEndpoint("https://push.example/gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	subs, err := ps.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("len = %d, want 0", len(subs))
	}
}

func TestNotificationLogDedupe(t *testing.T) {
	ps := setupPushTestDB(t)

	sent, err := ps.WasSent(model.NotifTypeDoseReminder, "intake-7")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("nothing recorded yet")
	}

	if err := ps.RecordSent(model.NotifTypeDoseReminder, "intake-7"); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Duplicate record is a no-op, not an error.
	if err := ps.RecordSent(model.NotifTypeDoseReminder, "intake-7"); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}

	sent, err = ps.WasSent(model.NotifTypeDoseReminder, "intake-7")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if !sent {
		t.Error("record should be found")
	}

	// Same ref under a different type is independent.
	sent, err = ps.WasSent(model.NotifTypeLowStock, "intake-7")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("different notif_type should not match")
	}
}
