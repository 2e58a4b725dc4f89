package readstate

import (
	"context"

	"msgsync/pkg/client"
	"msgsync/pkg/logger"
	"msgsync/pkg/store"
	"msgsync/pkg/telemetry"
)

// Badge receives the optimistic unread-total adjustment when a
// conversation is opened. The poller's badge satisfies this.
type Badge interface {
	BadgeTotal() int
	SetBadge(n int)
}

// Reconciler drives mark-as-read. Opening a thread zeroes the local
// unread count and flips loaded messages to read immediately; the remote
// request follows. A failed request is not retried: the optimistic zero
// stays, and the server's value reasserts itself on the next summary
// poll. Unread counts are never re-incremented locally.
type Reconciler struct {
	api     client.API
	convs   *store.ConversationStore
	threads *store.ThreadStore
	badge   Badge
}

func New(api client.API, convs *store.ConversationStore, threads *store.ThreadStore, badge Badge) *Reconciler {
	return &Reconciler{api: api, convs: convs, threads: threads, badge: badge}
}

// MarkRead marks the conversation with partnerID as read. The local
// adjustment is applied before the remote call; the returned error
// reflects only the remote request and callers may ignore it.
func (r *Reconciler) MarkRead(ctx context.Context, partnerID string) error {
	if c, ok := r.convs.Get(partnerID); ok && c.UnreadCount > 0 && r.badge != nil {
		r.badge.SetBadge(r.badge.BadgeTotal() - c.UnreadCount)
	}
	r.convs.ZeroUnread(partnerID)
	r.threads.MarkAllRead(partnerID)

	n, err := r.api.MarkRead(ctx, partnerID)
	if err != nil {
		telemetry.MarkReadTotal.WithLabelValues("failed").Inc()
		logger.Warn("mark_read_failed", "partner", partnerID, "error", err)
		return err
	}
	telemetry.MarkReadTotal.WithLabelValues("ok").Inc()
	logger.Debug("marked_read", "partner", partnerID, "count", n)
	return nil
}
