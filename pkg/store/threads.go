package store

import (
	"sort"
	"sync"

	"msgsync/pkg/models"
)

// ThreadUpdate identifies which thread changed in a notification.
type ThreadUpdate struct {
	PartnerID string
	Messages  []models.Message
}

// ThreadStore holds the per-conversation message logs. Within one thread
// ids are unique and messages are kept ascending by creation time.
// Pending entries are only ever retired by the send pipeline; a poll
// arriving before the send response cannot drop them.
type ThreadStore struct {
	mu      sync.Mutex
	threads map[string][]models.Message
	subs    subscribers[ThreadUpdate]
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string][]models.Message)}
}

// Snapshot returns a copy of the thread with partnerID.
func (s *ThreadStore) Snapshot(partnerID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.threads[partnerID]...)
}

// Get returns the message with id within partnerID's thread.
func (s *ThreadStore) Get(partnerID, id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.threads[partnerID] {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Subscribe registers a listener notified with the new snapshot of any
// thread that changes.
func (s *ThreadStore) Subscribe(fn func(ThreadUpdate)) (cancel func()) {
	return s.subs.add(fn)
}

// UpsertMany merges server records into partnerID's thread. Records
// already present are replaced only when the server copy differs (e.g. a
// read flag flipped); unknown ids are inserted in order. Pending entries
// are left untouched. Applying the same response twice is a no-op.
func (s *ThreadStore) UpsertMany(partnerID string, msgs []models.Message) bool {
	s.mu.Lock()
	cur := s.threads[partnerID]
	byID := make(map[string]int, len(cur))
	for i, m := range cur {
		byID[m.ID] = i
	}
	changed := false
	for _, in := range msgs {
		if in.ID == "" || models.IsPendingID(in.ID) {
			continue
		}
		if i, ok := byID[in.ID]; ok {
			if cur[i] != in {
				cur[i] = in
				changed = true
			}
			continue
		}
		cur = append(cur, in)
		byID[in.ID] = len(cur) - 1
		changed = true
	}
	if changed {
		sortThread(cur)
		s.threads[partnerID] = cur
	}
	snap := append([]models.Message(nil), cur...)
	s.mu.Unlock()

	if changed {
		s.subs.notify(ThreadUpdate{PartnerID: partnerID, Messages: snap})
	}
	return changed
}

// InsertPending appends a locally issued pending message. At most one
// pending entry per logical send exists until the pipeline retires it.
func (s *ThreadStore) InsertPending(partnerID string, msg models.Message) {
	s.mu.Lock()
	msg.Delivery = models.DeliveryPending
	cur := append(s.threads[partnerID], msg)
	sortThread(cur)
	s.threads[partnerID] = cur
	snap := append([]models.Message(nil), cur...)
	s.mu.Unlock()
	s.subs.notify(ThreadUpdate{PartnerID: partnerID, Messages: snap})
}

// ResolvePending retires the pending entry with localID, correlated by
// id rather than content, and installs the canonical server record. If a
// poll already delivered the canonical record the pending entry is
// simply dropped.
func (s *ThreadStore) ResolvePending(partnerID, localID string, canonical models.Message) bool {
	s.mu.Lock()
	cur := s.threads[partnerID]
	idx := -1
	haveCanonical := false
	for i, m := range cur {
		if m.ID == localID {
			idx = i
		}
		if m.ID == canonical.ID {
			haveCanonical = true
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	canonical.Delivery = models.DeliveryConfirmed
	if haveCanonical {
		cur = append(cur[:idx], cur[idx+1:]...)
	} else {
		cur[idx] = canonical
	}
	sortThread(cur)
	s.threads[partnerID] = cur
	snap := append([]models.Message(nil), cur...)
	s.mu.Unlock()
	s.subs.notify(ThreadUpdate{PartnerID: partnerID, Messages: snap})
	return true
}

// MarkFailed flags the pending entry with localID as failed. The entry
// stays visible so the user can retry.
func (s *ThreadStore) MarkFailed(partnerID, localID string) bool {
	s.mu.Lock()
	cur := s.threads[partnerID]
	idx := -1
	for i, m := range cur {
		if m.ID == localID {
			idx = i
			break
		}
	}
	if idx < 0 || cur[idx].Delivery == models.DeliveryFailed {
		s.mu.Unlock()
		return false
	}
	cur[idx].Delivery = models.DeliveryFailed
	snap := append([]models.Message(nil), cur...)
	s.mu.Unlock()
	s.subs.notify(ThreadUpdate{PartnerID: partnerID, Messages: snap})
	return true
}

// MarkAllRead flips the read flag on every loaded message in the thread.
func (s *ThreadStore) MarkAllRead(partnerID string) bool {
	s.mu.Lock()
	cur := s.threads[partnerID]
	changed := false
	for i := range cur {
		if !cur[i].Read {
			cur[i].Read = true
			changed = true
		}
	}
	var snap []models.Message
	if changed {
		snap = append([]models.Message(nil), cur...)
	}
	s.mu.Unlock()
	if changed {
		s.subs.notify(ThreadUpdate{PartnerID: partnerID, Messages: snap})
	}
	return changed
}

// Trim bounds partnerID's thread to the newest keep confirmed messages.
// Pending and failed entries are never trimmed.
func (s *ThreadStore) Trim(partnerID string, keep int) int {
	if keep <= 0 {
		return 0
	}
	s.mu.Lock()
	cur := s.threads[partnerID]
	confirmed := 0
	for _, m := range cur {
		if m.Delivery == models.DeliveryConfirmed {
			confirmed++
		}
	}
	drop := confirmed - keep
	if drop <= 0 {
		s.mu.Unlock()
		return 0
	}
	out := make([]models.Message, 0, len(cur)-drop)
	dropped := 0
	for _, m := range cur {
		if dropped < drop && m.Delivery == models.DeliveryConfirmed {
			dropped++
			continue
		}
		out = append(out, m)
	}
	s.threads[partnerID] = out
	snap := append([]models.Message(nil), out...)
	s.mu.Unlock()
	s.subs.notify(ThreadUpdate{PartnerID: partnerID, Messages: snap})
	return dropped
}

// Partners returns the partner ids with loaded threads.
func (s *ThreadStore) Partners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.threads))
	for p := range s.threads {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset discards all threads, e.g. on logout.
func (s *ThreadStore) Reset() {
	s.mu.Lock()
	had := len(s.threads) > 0
	s.threads = make(map[string][]models.Message)
	s.mu.Unlock()
	if had {
		s.subs.notify(ThreadUpdate{})
	}
}

// sortThread orders ascending by creation time, ties by id so repeated
// merges are stable.
func sortThread(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ti, tj := msgs[i].CreatedAt.Time, msgs[j].CreatedAt.Time
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
