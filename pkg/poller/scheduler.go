package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"msgsync/pkg/client"
	"msgsync/pkg/logger"
	"msgsync/pkg/models"
	"msgsync/pkg/store"
	"msgsync/pkg/telemetry"
)

// Gate is the slice of the session layer the scheduler needs.
type Gate interface {
	IsActive() bool
}

// Options tunes a Scheduler. Zero intervals fall back to defaults.
type Options struct {
	SummaryInterval time.Duration
	ThreadInterval  time.Duration
	PageSize        int
}

// Scheduler owns the two polling timers: a summary timer that refreshes
// conversation summaries plus the unread badge while a session is
// active, and a thread timer that refreshes the open conversation. It is
// the only component issuing background fetches; any number of
// subscribers share it through the stores.
//
// A failed fetch is logged and skipped; the timer keeps running and the
// next tick retries. Stop fences in-flight fetches with a generation
// counter: once Stop returns, no merge from a stale fetch can reach the
// stores.
type Scheduler struct {
	api     client.API
	gate    Gate
	convs   *store.ConversationStore
	threads *store.ThreadStore
	opts    Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	active  string
	badge   int
	kick    chan struct{}

	gen     atomic.Uint64
	mergeMu sync.Mutex
}

func New(api client.API, gate Gate, convs *store.ConversationStore, threads *store.ThreadStore, opts Options) *Scheduler {
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = 15 * time.Second
	}
	if opts.ThreadInterval <= 0 {
		opts.ThreadInterval = 5 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Scheduler{api: api, gate: gate, convs: convs, threads: threads, opts: opts}
}

// Start launches both timers. Idempotent; a no-op while already running
// or when the session is inactive.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running || !s.gate.IsActive() {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.kick = make(chan struct{}, 1)
	gen := s.gen.Load()
	kick := s.kick
	s.mu.Unlock()

	logger.Info("scheduler_started", "summary_interval", s.opts.SummaryInterval, "thread_interval", s.opts.ThreadInterval)
	go s.summaryLoop(ctx, gen)
	go s.threadLoop(ctx, gen, kick)
}

// Stop cancels both timers. When Stop returns, no further merge can
// occur: in-flight fetches resolve against a stale generation and their
// results are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.cancel = nil
	s.gen.Add(1)
	s.mu.Unlock()

	// fence: wait out a merge already past the generation check
	s.mergeMu.Lock()
	s.mergeMu.Unlock() //nolint:staticcheck // empty section is the fence
	logger.Info("scheduler_stopped")
}

// Running reports whether the timers are live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetActiveThread selects the conversation the thread timer follows.
// Pass "" to deselect. Selecting a thread triggers an immediate fetch.
func (s *Scheduler) SetActiveThread(partnerID string) {
	s.mu.Lock()
	s.active = partnerID
	kick := s.kick
	running := s.running
	s.mu.Unlock()

	if running && partnerID != "" {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

// ActiveThread returns the partner id the thread timer follows.
func (s *Scheduler) ActiveThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// BadgeTotal returns the last unread total reported by the server.
func (s *Scheduler) BadgeTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badge
}

// SetBadge overrides the local badge value, used by the read-state
// reconciler for its optimistic adjustment. The next summary poll
// reasserts the server's value.
func (s *Scheduler) SetBadge(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.badge = n
	s.mu.Unlock()
	telemetry.UnreadBadge.Set(float64(n))
}

// LoadOlder fetches the page preceding the oldest confirmed message in
// partnerID's thread and merges it. Used for scroll-back paging.
func (s *Scheduler) LoadOlder(ctx context.Context, partnerID string) error {
	gen := s.gen.Load()
	var before time.Time
	for _, m := range s.threads.Snapshot(partnerID) {
		if m.Delivery == models.DeliveryConfirmed && !m.CreatedAt.IsZero() {
			before = m.CreatedAt.Time
			break
		}
	}
	msgs, err := s.api.Messages(ctx, partnerID, s.opts.PageSize, before)
	if err != nil {
		return err
	}
	s.applyWithGen(gen, func() {
		if s.threads.UpsertMany(partnerID, msgs) {
			telemetry.MergesApplied.WithLabelValues("thread").Inc()
		}
	})
	return nil
}

// ForceRefresh performs one immediate summary poll plus a poll of the
// active thread, outside the timer cadence. Used by the resync runner.
func (s *Scheduler) ForceRefresh(ctx context.Context) {
	gen := s.gen.Load()
	s.pollSummary(ctx, gen)
	if p := s.ActiveThread(); p != "" {
		s.pollThread(ctx, gen, p)
	}
}

func (s *Scheduler) summaryLoop(ctx context.Context, gen uint64) {
	t := time.NewTicker(s.opts.SummaryInterval)
	defer t.Stop()
	s.tickSummary(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tickSummary(ctx, gen)
		}
	}
}

func (s *Scheduler) threadLoop(ctx context.Context, gen uint64, kick <-chan struct{}) {
	t := time.NewTicker(s.opts.ThreadInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
		case <-t.C:
		}
		if !s.gate.IsActive() {
			telemetry.ObservePoll("thread", "skipped", 0)
			continue
		}
		partner := s.ActiveThread()
		if partner == "" {
			continue
		}
		s.pollThread(ctx, gen, partner)
	}
}

func (s *Scheduler) tickSummary(ctx context.Context, gen uint64) {
	if !s.gate.IsActive() {
		telemetry.ObservePoll("summary", "skipped", 0)
		return
	}
	s.pollSummary(ctx, gen)
}

func (s *Scheduler) pollSummary(ctx context.Context, gen uint64) {
	start := time.Now()
	convs, err := s.api.Conversations(ctx)
	if err != nil {
		telemetry.ObservePoll("summary", "error", 0)
		logger.Warn("summary_poll_failed", "error", err)
		return
	}
	unread, unreadErr := s.api.UnreadCount(ctx)

	merged := s.applyWithGen(gen, func() {
		if s.convs.UpsertMany(convs) {
			telemetry.MergesApplied.WithLabelValues("conversations").Inc()
		}
		if unreadErr == nil {
			s.mu.Lock()
			s.badge = unread
			s.mu.Unlock()
			telemetry.UnreadBadge.Set(float64(unread))
		}
	})
	if !merged {
		logger.Debug("summary_result_discarded")
		return
	}
	if unreadErr != nil {
		logger.Warn("unread_count_failed", "error", unreadErr)
	}
	telemetry.ObservePoll("summary", "ok", time.Since(start))
}

func (s *Scheduler) pollThread(ctx context.Context, gen uint64, partnerID string) {
	start := time.Now()
	msgs, err := s.api.Messages(ctx, partnerID, s.opts.PageSize, time.Time{})
	if err != nil {
		telemetry.ObservePoll("thread", "error", 0)
		logger.Warn("thread_poll_failed", "partner", partnerID, "error", err)
		return
	}
	merged := s.applyWithGen(gen, func() {
		if s.threads.UpsertMany(partnerID, msgs) {
			telemetry.MergesApplied.WithLabelValues("thread").Inc()
		}
	})
	if !merged {
		logger.Debug("thread_result_discarded", "partner", partnerID)
		return
	}
	telemetry.ObservePoll("thread", "ok", time.Since(start))
}

// applyWithGen runs fn only when gen is still current, holding the merge
// lock so Stop can fence against it. Reports whether fn ran.
func (s *Scheduler) applyWithGen(gen uint64, fn func()) bool {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()
	if gen != s.gen.Load() {
		return false
	}
	fn()
	return true
}
