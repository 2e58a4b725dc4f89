package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimeParsesNaiveISO(t *testing.T) {
	var m Message
	raw := `{"id":"m-1","sender_id":"u1","recipient_id":"u2","content":"hi","is_read":false,"created_at":"2026-03-01T10:15:30.123456"}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2026, 3, 1, 10, 15, 30, 123456000, time.UTC)
	if !m.CreatedAt.Equal(want) {
		t.Fatalf("created_at = %v, want %v", m.CreatedAt.Time, want)
	}
}

func TestTimeParsesRFC3339(t *testing.T) {
	var m Message
	raw := `{"id":"m-1","created_at":"2026-03-01T10:15:30Z"}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.CreatedAt.IsZero() {
		t.Fatalf("expected non-zero time")
	}
}

func TestTimeRejectsGarbage(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"created_at":"yesterday"}`), &m); err == nil {
		t.Fatalf("expected error for invalid timestamp")
	}
}

func TestTimeNullIsZero(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"created_at":null}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !m.CreatedAt.IsZero() {
		t.Fatalf("expected zero time for null")
	}
}

func TestDeliveryNotSerialized(t *testing.T) {
	m := Message{ID: "m-1", Delivery: DeliveryFailed}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["Delivery"]; ok {
		t.Fatalf("delivery state leaked into wire format")
	}
}

func TestPendingIDs(t *testing.T) {
	id := NewPendingID()
	if !IsPendingID(id) {
		t.Fatalf("NewPendingID produced non-pending id %q", id)
	}
	if IsPendingID("m-42") {
		t.Fatalf("canonical id classified as pending")
	}
	if id == NewPendingID() {
		t.Fatalf("pending ids must be unique")
	}
}
