package client

import (
	"context"
	"errors"
	"time"

	"msgsync/pkg/models"
)

// Sentinel errors surfaced by the client. Transport failures are wrapped
// with %w so callers can unwrap the cause; ErrUnauthorized is the only
// status-specific error, everything else arrives as a generic request
// failure to be retried on the next tick.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoCredential = errors.New("no credential available")
)

// SendRequest is the payload for Send.
type SendRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	ListingID   string `json:"listing_id,omitempty"`
}

// API is the conceptual REST surface of the marketplace messaging backend
// consumed by the sync engine. Implementations attach the bearer
// credential to every request.
type API interface {
	// Conversations fetches the conversation summaries for the
	// authenticated user.
	Conversations(ctx context.Context) ([]models.Conversation, error)
	// Messages fetches the thread with partnerID, ascending by creation
	// time. A zero before fetches the newest page.
	Messages(ctx context.Context, partnerID string, limit int, before time.Time) ([]models.Message, error)
	// Send delivers a message and returns the canonical server record.
	Send(ctx context.Context, req SendRequest) (models.Message, error)
	// MarkRead marks all messages from partnerID as read and returns the
	// number of messages the server flipped.
	MarkRead(ctx context.Context, partnerID string) (int, error)
	// UnreadCount returns the total unread messages for the user.
	UnreadCount(ctx context.Context) (int, error)
}

// CredentialSource supplies the bearer credential and receives inbound
// 401 observations so the session layer can apply its grace-window
// policy.
type CredentialSource interface {
	Credential() (string, bool)
	Unauthorized()
}

// wire shapes, mirroring the backend responses

type conversationsResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type sendResponse struct {
	Message     string         `json:"message"`
	MessageID   string         `json:"message_id"`
	MessageData models.Message `json:"message_data"`
}

type markReadResponse struct {
	MarkedRead int `json:"marked_read"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}
