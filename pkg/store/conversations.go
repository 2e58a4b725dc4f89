package store

import (
	"sort"
	"sync"

	"msgsync/pkg/models"
)

// ConversationStore is the authoritative in-memory cache of conversation
// summaries, one per correspondent. Snapshots are ordered by the last
// message's creation time descending, ties broken by partner id
// ascending so repeated polls cannot reshuffle equal entries.
//
// Merges are upsert-only: partners absent from a summary response are
// retained, since the backend reports the full set each tick and absence
// means "not reported", not "deleted".
type ConversationStore struct {
	mu        sync.Mutex
	byPartner map[string]models.Conversation
	subs      subscribers[[]models.Conversation]
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{byPartner: make(map[string]models.Conversation)}
}

// Get returns the conversation for partnerID.
func (s *ConversationStore) Get(partnerID string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPartner[partnerID]
	return c, ok
}

// Snapshot returns a consistent point-in-time copy of all conversations
// in display order.
func (s *ConversationStore) Snapshot() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Subscribe registers a listener that receives the new snapshot after
// every change until the returned cancel func runs.
func (s *ConversationStore) Subscribe(fn func([]models.Conversation)) (cancel func()) {
	return s.subs.add(fn)
}

// UpsertMany merges a summary response into the store. The server record
// wins wholesale, with one exception: a preview belonging to a local
// pending send that is newer than the server's is kept until the send
// pipeline retires it, so a poll racing a send cannot demote the
// conversation. Reports whether anything changed; subscribers are only
// notified on change.
func (s *ConversationStore) UpsertMany(convs []models.Conversation) bool {
	s.mu.Lock()
	changed := false
	for _, in := range convs {
		if in.PartnerID == "" {
			continue
		}
		cur, ok := s.byPartner[in.PartnerID]
		if ok && models.IsPendingID(cur.LastMessage.ID) && cur.LastMessage.CreatedAt.After(in.LastMessage.CreatedAt.Time) {
			merged := in
			merged.LastMessage = cur.LastMessage
			in = merged
		}
		if !ok || cur != in {
			s.byPartner[in.PartnerID] = in
			changed = true
		}
	}
	var snap []models.Conversation
	if changed {
		snap = s.sortedLocked()
	}
	s.mu.Unlock()

	if changed {
		s.subs.notify(snap)
	}
	return changed
}

// ApplyLocalSend installs an optimistic preview for partnerID and moves
// the conversation to the top. Used only by the send pipeline.
func (s *ConversationStore) ApplyLocalSend(partnerID, partnerName string, last models.LastMessage) {
	s.mu.Lock()
	cur, ok := s.byPartner[partnerID]
	if !ok {
		cur = models.Conversation{PartnerID: partnerID, PartnerName: partnerName}
	}
	cur.LastMessage = last
	s.byPartner[partnerID] = cur
	snap := s.sortedLocked()
	s.mu.Unlock()
	s.subs.notify(snap)
}

// ReplaceLastMessage swaps the preview for partnerID when its id matches
// wantID, e.g. retiring a pending preview with the canonical record.
func (s *ConversationStore) ReplaceLastMessage(partnerID, wantID string, last models.LastMessage) bool {
	s.mu.Lock()
	cur, ok := s.byPartner[partnerID]
	if !ok || cur.LastMessage.ID != wantID {
		s.mu.Unlock()
		return false
	}
	cur.LastMessage = last
	s.byPartner[partnerID] = cur
	snap := s.sortedLocked()
	s.mu.Unlock()
	s.subs.notify(snap)
	return true
}

// ZeroUnread optimistically clears the unread count for partnerID. The
// server's value reasserts itself on the next summary merge.
func (s *ConversationStore) ZeroUnread(partnerID string) bool {
	s.mu.Lock()
	cur, ok := s.byPartner[partnerID]
	if !ok || cur.UnreadCount == 0 {
		s.mu.Unlock()
		return false
	}
	cur.UnreadCount = 0
	s.byPartner[partnerID] = cur
	snap := s.sortedLocked()
	s.mu.Unlock()
	s.subs.notify(snap)
	return true
}

// Reset discards all conversations, e.g. on logout.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	had := len(s.byPartner) > 0
	s.byPartner = make(map[string]models.Conversation)
	s.mu.Unlock()
	if had {
		s.subs.notify(nil)
	}
}

// Len returns the number of cached conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPartner)
}

func (s *ConversationStore) sortedLocked() []models.Conversation {
	out := make([]models.Conversation, 0, len(s.byPartner))
	for _, c := range s.byPartner {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.CreatedAt.Time, out[j].LastMessage.CreatedAt.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	return out
}
