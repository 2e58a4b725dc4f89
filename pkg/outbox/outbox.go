package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"msgsync/pkg/client"
	"msgsync/pkg/logger"
	"msgsync/pkg/models"
	"msgsync/pkg/store"
	"msgsync/pkg/telemetry"
)

var (
	// ErrEmptyMessage rejects a send with no content before anything is
	// inserted locally.
	ErrEmptyMessage = errors.New("empty message")
	// ErrSendFailed wraps a failed remote send. The pending entry stays
	// in the thread flagged failed; Retry can re-issue it.
	ErrSendFailed = errors.New("send failed")
	// ErrNotRetryable is returned by Retry for unknown or non-failed ids.
	ErrNotRetryable = errors.New("message is not retryable")
)

// Outbox is the optimistic send pipeline. A send inserts a pending
// message into the thread store immediately, bumps the conversation
// preview, then issues the remote call. The pending entry is correlated
// by its local id, never by content or timestamp, so identical texts
// sent in quick succession cannot be confused.
type Outbox struct {
	api     client.API
	convs   *store.ConversationStore
	threads *store.ThreadStore

	mu       sync.Mutex
	selfID   string
	selfName string

	// now is swappable for tests.
	now func() time.Time
}

func New(api client.API, convs *store.ConversationStore, threads *store.ThreadStore) *Outbox {
	return &Outbox{api: api, convs: convs, threads: threads, now: time.Now}
}

// SetIdentity installs the authenticated user's id and display name,
// used to stamp pending messages. Identity is also learned automatically
// from the first confirmed send.
func (o *Outbox) SetIdentity(id, name string) {
	o.mu.Lock()
	o.selfID, o.selfName = id, name
	o.mu.Unlock()
}

// Send delivers content to partnerID, optionally referencing a listing.
// The returned message is the canonical server record on success. On
// failure the pending entry remains visible, flagged failed, and the
// error wraps ErrSendFailed.
func (o *Outbox) Send(ctx context.Context, partnerID, content, listingID string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	o.mu.Lock()
	selfID, selfName := o.selfID, o.selfName
	o.mu.Unlock()

	pending := models.Message{
		ID:          models.NewPendingID(),
		SenderID:    selfID,
		SenderName:  selfName,
		RecipientID: partnerID,
		Content:     content,
		Read:        true,
		CreatedAt:   models.At(o.now()),
		ListingID:   listingID,
	}
	o.insertOptimistic(partnerID, pending)

	canonical, err := o.api.Send(ctx, client.SendRequest{
		RecipientID: partnerID,
		Content:     content,
		ListingID:   listingID,
	})
	if err != nil {
		o.threads.MarkFailed(partnerID, pending.ID)
		telemetry.SendsTotal.WithLabelValues("failed").Inc()
		logger.Warn("send_failed", "partner", partnerID, "local_id", pending.ID, "error", err)
		return models.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	o.confirm(partnerID, pending.ID, canonical)
	return canonical, nil
}

// Retry re-issues a failed send identified by its local id, reusing the
// id as the correlation key.
func (o *Outbox) Retry(ctx context.Context, partnerID, localID string) (models.Message, error) {
	msg, ok := o.threads.Get(partnerID, localID)
	if !ok || msg.Delivery != models.DeliveryFailed {
		return models.Message{}, ErrNotRetryable
	}
	canonical, err := o.api.Send(ctx, client.SendRequest{
		RecipientID: partnerID,
		Content:     msg.Content,
		ListingID:   msg.ListingID,
	})
	if err != nil {
		telemetry.SendsTotal.WithLabelValues("failed").Inc()
		logger.Warn("send_retry_failed", "partner", partnerID, "local_id", localID, "error", err)
		return models.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	o.confirm(partnerID, localID, canonical)
	return canonical, nil
}

// insertOptimistic makes the send visible before the network round-trip:
// pending entry in the thread, bumped preview in the conversation list.
func (o *Outbox) insertOptimistic(partnerID string, pending models.Message) {
	o.threads.InsertPending(partnerID, pending)
	partnerName := ""
	if c, ok := o.convs.Get(partnerID); ok {
		partnerName = c.PartnerName
	}
	o.convs.ApplyLocalSend(partnerID, partnerName, models.LastMessage{
		ID:        pending.ID,
		Content:   pending.Content,
		CreatedAt: pending.CreatedAt,
		SenderID:  pending.SenderID,
		Read:      true,
		ListingID: pending.ListingID,
		IsSender:  true,
	})
}

// confirm retires the pending entry and installs the canonical record,
// reordering the conversation on the canonical timestamp.
func (o *Outbox) confirm(partnerID, localID string, canonical models.Message) {
	if !o.threads.ResolvePending(partnerID, localID, canonical) {
		// the pipeline is the only component that retires pending
		// entries, so this indicates a reset (logout) raced the send
		logger.Debug("pending_entry_gone", "partner", partnerID, "local_id", localID)
	}
	o.convs.ReplaceLastMessage(partnerID, localID, models.LastMessage{
		ID:           canonical.ID,
		Content:      canonical.Content,
		CreatedAt:    canonical.CreatedAt,
		SenderID:     canonical.SenderID,
		Read:         canonical.Read,
		ListingID:    canonical.ListingID,
		ListingTitle: canonical.ListingTitle,
		IsSender:     true,
	})
	o.mu.Lock()
	if o.selfID == "" && canonical.SenderID != "" {
		o.selfID, o.selfName = canonical.SenderID, canonical.SenderName
	}
	o.mu.Unlock()
	telemetry.SendsTotal.WithLabelValues("ok").Inc()
}
