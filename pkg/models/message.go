package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Delivery tracks the local confirmation state of a message. The zero value
// is Confirmed so records decoded from the server need no extra handling.
type Delivery uint8

const (
	DeliveryConfirmed Delivery = iota
	DeliveryPending
	DeliveryFailed
)

// PendingIDPrefix tags locally generated message ids issued before the
// server has confirmed a send. Pending ids never collide with canonical
// server ids.
const PendingIDPrefix = "pending-"

// NewPendingID returns a fresh locally unique pending message id.
func NewPendingID() string {
	return PendingIDPrefix + uuid.NewString()
}

// IsPendingID reports whether id is a locally issued pending id.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

type Message struct {
	ID            string `json:"id"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name,omitempty"`
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name,omitempty"`
	Content       string `json:"content"`
	Read          bool   `json:"is_read"`
	CreatedAt     Time   `json:"created_at"`
	ListingID     string `json:"listing_id,omitempty"`
	ListingTitle  string `json:"listing_title,omitempty"`

	// Delivery is local-only state; it is never sent to or read from the
	// server.
	Delivery Delivery `json:"-"`
}

// Time wraps time.Time to accept the backend's timestamp formats. The
// marketplace emits naive ISO-8601 strings (no zone, UTC implied) while
// proper RFC3339 is accepted too.
type Time struct {
	time.Time
}

const naiveLayout = "2006-01-02T15:04:05.999999999"

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	if v, err := time.Parse(naiveLayout, s); err == nil {
		t.Time = v.UTC()
		return nil
	}
	return fmt.Errorf("invalid timestamp: %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// At builds a Time from a time.Time, normalized to UTC.
func At(v time.Time) Time { return Time{Time: v.UTC()} }
