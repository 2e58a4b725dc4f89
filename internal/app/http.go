package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"msgsync/pkg/logger"
	"msgsync/pkg/outbox"
	"msgsync/pkg/utils"
)

// The debug server is the daemon's local surface: liveness and readiness
// probes, prometheus metrics, read-only snapshots of the stores, and the
// narrow intent endpoints (select thread, send, mark read) that a UI
// widget would dispatch.

func (a *App) startDebugServer(ctx context.Context) <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	srv := &http.Server{Addr: a.cfg.Server.DebugAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("debug_server_listening", "addr", a.cfg.Server.DebugAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	return errCh
}

// setupHTTPHandlers sets up all HTTP handlers on the provided mux.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/conversations", a.conversationsHandler)
	mux.HandleFunc("/debug/thread/", a.threadHandler)
	mux.HandleFunc("/debug/badge", a.badgeHandler)
	mux.HandleFunc("/intents/select", a.selectHandler)
	mux.HandleFunc("/intents/send", a.sendHandler)
	mux.HandleFunc("/intents/retry", a.retryHandler)
	mux.HandleFunc("/intents/load-older", a.loadOlderHandler)
	mux.HandleFunc("/intents/mark-read", a.markReadHandler)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyzHandler reports ready once a session is active and the scheduler
// is polling.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !a.gate.IsActive() || !a.sched.Running() {
		_ = utils.JSONWrite(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	_ = utils.JSONWrite(w, 0, map[string]string{"status": "ready", "version": a.version})
}

func (a *App) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, 0, map[string]any{"conversations": a.convs.Snapshot()})
}

func (a *App) threadHandler(w http.ResponseWriter, r *http.Request) {
	partner := strings.TrimPrefix(r.URL.Path, "/debug/thread/")
	if partner == "" {
		utils.JSONError(w, http.StatusBadRequest, "missing partner id")
		return
	}
	_ = utils.JSONWrite(w, 0, map[string]any{"messages": a.threads.Snapshot(partner)})
}

func (a *App) badgeHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, 0, map[string]int{"unread_count": a.sched.BadgeTotal()})
}

// selectHandler switches the active thread; an empty partner_id
// deselects. Selecting also fires the read-state reconciler, matching
// the open-thread behavior of the UI.
func (a *App) selectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		PartnerID string `json:"partner_id"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	a.sched.SetActiveThread(req.PartnerID)
	if req.PartnerID != "" {
		_ = a.reads.MarkRead(r.Context(), req.PartnerID)
	}
	_ = utils.JSONWrite(w, 0, map[string]string{"active": req.PartnerID})
}

func (a *App) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		PartnerID string `json:"partner_id"`
		Content   string `json:"content"`
		ListingID string `json:"listing_id"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := a.outbox.Send(r.Context(), req.PartnerID, req.Content, req.ListingID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, outbox.ErrEmptyMessage) {
			status = http.StatusBadRequest
		}
		utils.JSONError(w, status, err.Error())
		return
	}
	_ = utils.JSONWrite(w, 0, msg)
}

// retryHandler re-dispatches a failed optimistic send under its
// original local id.
func (a *App) retryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		PartnerID string `json:"partner_id"`
		MessageID string `json:"message_id"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := a.outbox.Retry(r.Context(), req.PartnerID, req.MessageID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, outbox.ErrNotRetryable) {
			status = http.StatusConflict
		}
		utils.JSONError(w, status, err.Error())
		return
	}
	_ = utils.JSONWrite(w, 0, msg)
}

// loadOlderHandler fetches an older page of the partner's thread using
// the oldest confirmed message as the cursor.
func (a *App) loadOlderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		PartnerID string `json:"partner_id"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.PartnerID == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := a.sched.LoadOlder(r.Context(), req.PartnerID); err != nil {
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	_ = utils.JSONWrite(w, 0, map[string]any{"messages": a.threads.Snapshot(req.PartnerID)})
}

func (a *App) markReadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		PartnerID string `json:"partner_id"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.PartnerID == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// local zero always applies; a remote failure is reconciled by the
	// next summary poll
	_ = a.reads.MarkRead(r.Context(), req.PartnerID)
	_ = utils.JSONWrite(w, 0, map[string]string{"status": "ok"})
}
