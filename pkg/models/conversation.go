package models

// LastMessage is the preview of the newest message in a conversation as
// reported by the summary endpoint.
type LastMessage struct {
	ID           string `json:"id,omitempty"`
	Content      string `json:"content"`
	CreatedAt    Time   `json:"created_at"`
	SenderID     string `json:"sender_id,omitempty"`
	Read         bool   `json:"is_read"`
	ListingID    string `json:"listing_id,omitempty"`
	ListingTitle string `json:"listing_title,omitempty"`

	// IsSender is derived locally: true when the authenticated user sent
	// the message. Not part of the wire format.
	IsSender bool `json:"-"`
}

// Conversation aggregates all traffic with one correspondent. Keyed
// uniquely by PartnerID.
type Conversation struct {
	PartnerID   string      `json:"partner_id"`
	PartnerName string      `json:"partner_name"`
	LastMessage LastMessage `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
}
