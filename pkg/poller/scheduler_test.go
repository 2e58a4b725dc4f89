package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"msgsync/pkg/client"
	"msgsync/pkg/models"
	"msgsync/pkg/store"
)

type fakeGate struct {
	mu     sync.Mutex
	active bool
}

func (g *fakeGate) IsActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *fakeGate) set(v bool) {
	g.mu.Lock()
	g.active = v
	g.mu.Unlock()
}

// fakeAPI serves canned summary and thread responses. release, when
// non-nil, blocks Conversations until the test unblocks it.
type fakeAPI struct {
	client.API
	mu      sync.Mutex
	convs   []models.Conversation
	convErr error
	msgs    map[string][]models.Message
	unread  int
	release chan struct{}
	befores []time.Time
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	release := f.release
	out := append([]models.Conversation(nil), f.convs...)
	err := f.convErr
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeAPI) UnreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeAPI) Messages(ctx context.Context, partnerID string, limit int, before time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return append([]models.Message(nil), f.msgs[partnerID]...), nil
}

func testScheduler(api client.API, gate Gate) (*Scheduler, *store.ConversationStore, *store.ThreadStore) {
	convs := store.NewConversationStore()
	threads := store.NewThreadStore()
	// long intervals so only explicit polls run during the test
	s := New(api, gate, convs, threads, Options{SummaryInterval: time.Hour, ThreadInterval: time.Hour, PageSize: 10})
	return s, convs, threads
}

func summaryFixture() []models.Conversation {
	return []models.Conversation{{
		PartnerID:   "u-p",
		PartnerName: "Partner",
		UnreadCount: 2,
		LastMessage: models.LastMessage{ID: "m-1", Content: "hi", CreatedAt: models.At(time.Unix(1000, 0))},
	}}
}

func TestStartRequiresActiveSession(t *testing.T) {
	gate := &fakeGate{}
	s, _, _ := testScheduler(&fakeAPI{}, gate)
	s.Start()
	if s.Running() {
		t.Fatalf("scheduler started without a session")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	gate := &fakeGate{active: true}
	s, _, _ := testScheduler(&fakeAPI{}, gate)
	s.Start()
	if !s.Running() {
		t.Fatalf("not running after Start")
	}
	s.Start() // idempotent
	s.Stop()
	if s.Running() {
		t.Fatalf("still running after Stop")
	}
	s.Stop() // idempotent

	// a new session starts a fresh generation
	s.Start()
	if !s.Running() {
		t.Fatalf("restart failed")
	}
	s.Stop()
}

func TestSummaryPollMergesAndSetsBadge(t *testing.T) {
	gate := &fakeGate{active: true}
	api := &fakeAPI{convs: summaryFixture(), unread: 2}
	s, convs, _ := testScheduler(api, gate)

	s.pollSummary(context.Background(), s.gen.Load())

	if c, ok := convs.Get("u-p"); !ok || c.UnreadCount != 2 {
		t.Fatalf("summary not merged: %+v", c)
	}
	if s.BadgeTotal() != 2 {
		t.Fatalf("badge = %d, want 2", s.BadgeTotal())
	}
}

func TestFailedPollLeavesStoreUntouched(t *testing.T) {
	gate := &fakeGate{active: true}
	api := &fakeAPI{convs: summaryFixture(), unread: 2}
	s, convs, _ := testScheduler(api, gate)

	s.pollSummary(context.Background(), s.gen.Load())
	before := convs.Snapshot()

	api.mu.Lock()
	api.convErr = errors.New("connection refused")
	api.mu.Unlock()

	s.pollSummary(context.Background(), s.gen.Load())
	after := convs.Snapshot()
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("failed poll mutated the store: %+v vs %+v", after, before)
	}
	if s.BadgeTotal() != 2 {
		t.Fatalf("failed poll touched the badge")
	}
}

func TestStopDiscardsInFlightFetch(t *testing.T) {
	gate := &fakeGate{active: true}
	release := make(chan struct{})
	api := &fakeAPI{convs: summaryFixture(), unread: 2, release: release}
	s, convs, _ := testScheduler(api, gate)

	gen := s.gen.Load()
	done := make(chan struct{})
	go func() {
		s.pollSummary(context.Background(), gen)
		close(done)
	}()

	// logout while the fetch is blocked in the transport
	s.gen.Add(1)
	close(release)
	<-done

	if convs.Len() != 0 {
		t.Fatalf("stale fetch merged after stop")
	}
	if s.BadgeTotal() != 0 {
		t.Fatalf("stale fetch set the badge")
	}
}

func TestThreadPollMerges(t *testing.T) {
	gate := &fakeGate{active: true}
	api := &fakeAPI{msgs: map[string][]models.Message{
		"u-p": {{ID: "m-1", SenderID: "u-p", RecipientID: "u-me", Content: "hi", CreatedAt: models.At(time.Unix(1000, 0))}},
	}}
	s, _, threads := testScheduler(api, gate)

	s.pollThread(context.Background(), s.gen.Load(), "u-p")
	if got := threads.Snapshot("u-p"); len(got) != 1 || got[0].ID != "m-1" {
		t.Fatalf("thread not merged: %+v", got)
	}
}

func TestActiveThreadSelection(t *testing.T) {
	gate := &fakeGate{active: true}
	s, _, _ := testScheduler(&fakeAPI{}, gate)
	s.SetActiveThread("u-p")
	if s.ActiveThread() != "u-p" {
		t.Fatalf("active = %q", s.ActiveThread())
	}
	s.SetActiveThread("")
	if s.ActiveThread() != "" {
		t.Fatalf("deselect failed")
	}
}

func TestLoadOlderUsesOldestConfirmedCursor(t *testing.T) {
	gate := &fakeGate{active: true}
	api := &fakeAPI{msgs: map[string][]models.Message{"u-p": {}}}
	s, _, threads := testScheduler(api, gate)

	oldest := time.Unix(1000, 0).UTC()
	threads.UpsertMany("u-p", []models.Message{
		{ID: "m-2", CreatedAt: models.At(oldest.Add(time.Minute))},
		{ID: "m-1", CreatedAt: models.At(oldest)},
	})
	// a pending entry sorted first must not become the cursor
	threads.InsertPending("u-p", models.Message{ID: models.NewPendingID(), CreatedAt: models.At(oldest.Add(-time.Hour))})

	if err := s.LoadOlder(context.Background(), "u-p"); err != nil {
		t.Fatalf("load older: %v", err)
	}
	if len(api.befores) != 1 || !api.befores[0].Equal(oldest) {
		t.Fatalf("before cursor = %v, want %v", api.befores, oldest)
	}
}

func TestSetBadgeClampsNegative(t *testing.T) {
	gate := &fakeGate{active: true}
	s, _, _ := testScheduler(&fakeAPI{}, gate)
	s.SetBadge(-3)
	if s.BadgeTotal() != 0 {
		t.Fatalf("badge = %d, want 0", s.BadgeTotal())
	}
}
