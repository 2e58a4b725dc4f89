package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"msgsync/internal/stubapi"
	"msgsync/pkg/config"
	"msgsync/pkg/models"
)

func testConfig(t *testing.T, apiBase string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Normalize()
	cfg.Server.APIBase = apiBase
	cfg.Auth.StatePath = filepath.Join(t.TempDir(), "state")
	return cfg
}

func newTestApp(t *testing.T) (*App, *stubapi.Stub) {
	t.Helper()
	stub := stubapi.New()
	stub.AddUser(stubapi.User{ID: "u-alice", Name: "Alice", Token: "tok-alice"})
	stub.AddUser(stubapi.User{ID: "u-bob", Name: "Bob", Token: "tok-bob"})
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	a, err := New(testConfig(t, srv.URL), "test")
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() {
		a.gate.Clear()
		a.creds.Close()
	})
	return a, stub
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoginStartsPollingLogoutResets(t *testing.T) {
	a, stub := newTestApp(t)
	stub.Seed(models.Message{
		SenderID: "u-bob", SenderName: "Bob",
		RecipientID: "u-alice", RecipientName: "Alice",
		Content: "hello", CreatedAt: models.At(time.Unix(1000, 0)),
	})

	a.gate.SetToken("tok-alice")
	if !a.sched.Running() {
		t.Fatalf("scheduler not started on login")
	}
	waitFor(t, func() bool { return a.convs.Len() > 0 }, "summary merge")
	waitFor(t, func() bool { return a.sched.BadgeTotal() == 1 }, "badge")

	// the credential survives a restart
	sess, err := a.creds.Load()
	if err != nil || sess.Token != "tok-alice" {
		t.Fatalf("persisted session = %+v, %v", sess, err)
	}

	a.gate.Clear()
	if a.sched.Running() {
		t.Fatalf("scheduler still running after logout")
	}
	if a.convs.Len() != 0 {
		t.Fatalf("conversations survived logout")
	}
	if a.sched.BadgeTotal() != 0 {
		t.Fatalf("badge survived logout")
	}
	sess, err = a.creds.Load()
	if err != nil || sess.Active() {
		t.Fatalf("credential survived logout: %+v, %v", sess, err)
	}
}

func TestIntentEndpoints(t *testing.T) {
	a, stub := newTestApp(t)
	stub.Seed(models.Message{
		SenderID: "u-bob", SenderName: "Bob",
		RecipientID: "u-alice", RecipientName: "Alice",
		Content: "ping", CreatedAt: models.At(time.Unix(1000, 0)),
	})
	a.gate.SetToken("tok-alice")
	waitFor(t, func() bool { return a.convs.Len() > 0 }, "summary merge")

	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	post := func(path string, body any) *http.Response {
		t.Helper()
		b, _ := json.Marshal(body)
		res, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return res
	}

	// readiness reflects the running scheduler
	res, err := http.Get(srv.URL + "/readyz")
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("readyz = %v, %v", res.StatusCode, err)
	}
	res.Body.Close()

	// selecting the thread marks it read
	res = post("/intents/select", map[string]string{"partner_id": "u-bob"})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d", res.StatusCode)
	}
	if c, _ := a.convs.Get("u-bob"); c.UnreadCount != 0 {
		t.Fatalf("select did not mark read, unread = %d", c.UnreadCount)
	}

	// send lands in the stub and in the local thread
	res = post("/intents/send", map[string]string{"partner_id": "u-bob", "content": "pong"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", res.StatusCode)
	}
	var sent models.Message
	if err := json.NewDecoder(res.Body).Decode(&sent); err != nil {
		t.Fatalf("decode send response: %v", err)
	}
	if sent.ID == "" || models.IsPendingID(sent.ID) {
		t.Fatalf("send returned non-canonical id %q", sent.ID)
	}
	found := false
	for _, m := range a.threads.Snapshot("u-bob") {
		if m.ID == sent.ID && m.Delivery == models.DeliveryConfirmed {
			found = true
		}
	}
	if !found {
		t.Fatalf("sent message missing from thread")
	}

	// empty content is a client error
	res = post("/intents/send", map[string]string{"partner_id": "u-bob", "content": " "})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty send status = %d, want 400", res.StatusCode)
	}

	// badge endpoint serves the local value
	res, err = http.Get(srv.URL + "/debug/badge")
	if err != nil {
		t.Fatalf("badge: %v", err)
	}
	defer res.Body.Close()
	var badge struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&badge); err != nil {
		t.Fatalf("decode badge: %v", err)
	}
}

func TestReadyzNotReadyWithoutSession(t *testing.T) {
	a, _ := newTestApp(t)
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", res.StatusCode)
	}
}
