package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"msgsync/internal/resync"
	"msgsync/pkg/client"
	"msgsync/pkg/config"
	"msgsync/pkg/logger"
	"msgsync/pkg/models"
	"msgsync/pkg/outbox"
	"msgsync/pkg/poller"
	"msgsync/pkg/readstate"
	"msgsync/pkg/session"
	"msgsync/pkg/state"
	"msgsync/pkg/store"
)

// App wires the sync engine: session gate, REST client, stores, polling
// scheduler, send pipeline and read-state reconciler, plus the local
// debug HTTP server.
type App struct {
	cfg     *config.Config
	version string

	gate    *session.Gate
	creds   *session.CredStore
	convs   *store.ConversationStore
	threads *store.ThreadStore
	sched   *poller.Scheduler
	outbox  *outbox.Outbox
	reads   *readstate.Reconciler
}

// New initializes all engine components. It does not start polling or
// the debug server; call Run for that.
func New(cfg *config.Config, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := state.EnsureStateDir(cfg.Auth.StatePath); err != nil {
		return nil, err
	}
	creds, err := session.OpenCredStore(cfg.Auth.StatePath)
	if err != nil {
		return nil, err
	}

	gate := session.NewGate(cfg.Auth.Grace.Duration())

	var doer client.Doer
	switch strings.ToLower(cfg.Transport.Engine) {
	case "", "nethttp":
		if cfg.Server.TLSSkipVerify {
			doer = client.NewNetHTTPDoerInsecure()
		} else {
			doer = client.NewNetHTTPDoer()
		}
	case "fasthttp":
		if cfg.Server.TLSSkipVerify {
			doer = client.NewFastHTTPDoerInsecure()
		} else {
			doer = client.NewFastHTTPDoer()
		}
	default:
		creds.Close()
		return nil, fmt.Errorf("unknown transport engine: %s", cfg.Transport.Engine)
	}
	api := client.New(cfg.Server.APIBase, doer, gate, client.Options{
		Timeout: cfg.Poll.RequestTimeout.Duration(),
		RPS:     cfg.Limits.RPS,
		Burst:   cfg.Limits.Burst,
	})

	convs := store.NewConversationStore()
	threads := store.NewThreadStore()
	sched := poller.New(api, gate, convs, threads, poller.Options{
		SummaryInterval: cfg.Poll.SummaryInterval.Duration(),
		ThreadInterval:  cfg.Poll.ThreadInterval.Duration(),
		PageSize:        cfg.Poll.PageSize,
	})

	a := &App{
		cfg:     cfg,
		version: version,
		gate:    gate,
		creds:   creds,
		convs:   convs,
		threads: threads,
		sched:   sched,
		outbox:  outbox.New(api, convs, threads),
		reads:   readstate.New(api, convs, threads, sched),
	}

	// login starts the scheduler and persists the credential; logout
	// stops it and clears every store synchronously so nothing from the
	// old session can leak into the next one
	gate.OnChange(func(active bool) {
		if active {
			if err := creds.Save(gate.Session()); err != nil {
				logger.Warn("credential_persist_failed", "error", err)
			}
			sched.Start()
			return
		}
		sched.Stop()
		convs.Reset()
		threads.Reset()
		sched.SetActiveThread("")
		sched.SetBadge(0)
		if err := creds.Clear(); err != nil {
			logger.Warn("credential_clear_failed", "error", err)
		}
	})

	return a, nil
}

// Run installs the initial credential, starts the resync runner and the
// debug HTTP server, and blocks until ctx is canceled or a fatal server
// error occurs.
func (a *App) Run(ctx context.Context) error {
	if tok := a.initialToken(); tok != "" {
		a.gate.SetToken(tok)
	} else {
		logger.Info("no_credential_waiting_for_login")
	}

	cancelResync, err := resync.Start(ctx, a.cfg.Resync, a.sched, a.threads)
	if err != nil {
		return err
	}
	defer cancelResync()

	errCh := a.startDebugServer(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// initialToken resolves the bearer credential: explicit config wins,
// then a token file, then the persisted session from a previous run.
func (a *App) initialToken() string {
	if t := strings.TrimSpace(a.cfg.Auth.Token); t != "" {
		return t
	}
	if f := a.cfg.Auth.TokenFile; f != "" {
		b, err := os.ReadFile(f)
		if err != nil {
			logger.Warn("token_file_unreadable", "path", f, "error", err)
		} else if t := strings.TrimSpace(string(b)); t != "" {
			return t
		}
	}
	sess, err := a.creds.Load()
	if err != nil {
		logger.Warn("stored_session_unreadable", "error", err)
		return ""
	}
	if sess.Active() {
		logger.Info("resuming_stored_session", "last_auth_at", sess.LastAuthAt)
	}
	return sess.Token
}

func (a *App) shutdown() {
	a.sched.Stop()
	if err := a.creds.Close(); err != nil {
		logger.Warn("credential_store_close_failed", "error", err)
	}
	logger.Sync()
}

// Session returns the current session, for status reporting.
func (a *App) Session() models.Session { return a.gate.Session() }
