package resync

import (
	"context"
	"testing"
	"time"

	"msgsync/pkg/client"
	"msgsync/pkg/config"
	"msgsync/pkg/models"
	"msgsync/pkg/poller"
	"msgsync/pkg/store"
)

type fakeAPI struct {
	client.API
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]models.Conversation, error) {
	return nil, nil
}

func (f *fakeAPI) UnreadCount(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeAPI) Messages(ctx context.Context, partnerID string, limit int, before time.Time) ([]models.Message, error) {
	return nil, nil
}

type activeGate struct{}

func (activeGate) IsActive() bool { return true }

func TestStartRejectsInvalidCron(t *testing.T) {
	sched := poller.New(&fakeAPI{}, activeGate{}, store.NewConversationStore(), store.NewThreadStore(), poller.Options{})
	cfg := config.ResyncConfig{Enabled: true, Cron: "not a cron"}
	if _, err := Start(context.Background(), cfg, sched, store.NewThreadStore()); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	sched := poller.New(&fakeAPI{}, activeGate{}, store.NewConversationStore(), store.NewThreadStore(), poller.Options{})
	cancel, err := Start(context.Background(), config.ResyncConfig{}, sched, store.NewThreadStore())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}

func TestRunOnceTrimsThreads(t *testing.T) {
	threads := store.NewThreadStore()
	sched := poller.New(&fakeAPI{}, activeGate{}, store.NewConversationStore(), threads, poller.Options{
		SummaryInterval: time.Hour, ThreadInterval: time.Hour,
	})
	sched.Start()
	defer sched.Stop()

	base := time.Unix(1000, 0)
	var msgs []models.Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, models.Message{
			ID:        "m-" + string(rune('a'+i)),
			Content:   "x",
			CreatedAt: models.At(base.Add(time.Duration(i) * time.Second)),
		})
	}
	threads.UpsertMany("u-p", msgs)

	RunOnce(context.Background(), config.ResyncConfig{Enabled: true, KeepMessages: 4}, sched, threads)
	if n := len(threads.Snapshot("u-p")); n != 4 {
		t.Fatalf("thread len = %d after trim, want 4", n)
	}
}

func TestRunOnceSkipsWhenStopped(t *testing.T) {
	threads := store.NewThreadStore()
	sched := poller.New(&fakeAPI{}, activeGate{}, store.NewConversationStore(), threads, poller.Options{})
	threads.UpsertMany("u-p", []models.Message{
		{ID: "m-1", Content: "x", CreatedAt: models.At(time.Unix(1000, 0))},
		{ID: "m-2", Content: "x", CreatedAt: models.At(time.Unix(1001, 0))},
	})
	RunOnce(context.Background(), config.ResyncConfig{Enabled: true, KeepMessages: 1}, sched, threads)
	if n := len(threads.Snapshot("u-p")); n != 2 {
		t.Fatalf("stopped scheduler must not trim, len = %d", n)
	}
}
