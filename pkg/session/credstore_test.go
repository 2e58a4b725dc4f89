package session

import (
	"testing"
	"time"

	"msgsync/pkg/models"
)

func TestCredStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenCredStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sess := models.Session{Token: "tok-abc", LastAuthAt: time.Unix(1700000000, 0).UTC()}
	if err := s.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// reopen and read back
	s, err = OpenCredStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Token != sess.Token {
		t.Fatalf("token = %q, want %q", got.Token, sess.Token)
	}
	if !got.LastAuthAt.Equal(sess.LastAuthAt) {
		t.Fatalf("last_auth_at = %v, want %v", got.LastAuthAt, sess.LastAuthAt)
	}
}

func TestCredStoreLoadEmpty(t *testing.T) {
	s, err := OpenCredStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active() {
		t.Fatalf("empty store returned an active session")
	}
}

func TestCredStoreClear(t *testing.T) {
	s, err := OpenCredStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Save(models.Session{Token: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active() {
		t.Fatalf("session survived Clear")
	}
}
