package session

import (
	"testing"
	"time"
)

func TestGateTransitions(t *testing.T) {
	g := NewGate(5 * time.Second)
	if g.IsActive() {
		t.Fatalf("new gate must be inactive")
	}

	var events []bool
	g.OnChange(func(active bool) { events = append(events, active) })

	g.SetToken("tok-1")
	if !g.IsActive() {
		t.Fatalf("gate inactive after SetToken")
	}
	if tok, ok := g.Credential(); !ok || tok != "tok-1" {
		t.Fatalf("credential = %q, %v", tok, ok)
	}

	// replacing the token is not a transition
	g.SetToken("tok-2")
	g.Clear()
	if g.IsActive() {
		t.Fatalf("gate active after Clear")
	}
	// idempotent
	g.Clear()

	want := []bool{true, false}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestGateListenersRunBeforeClearReturns(t *testing.T) {
	g := NewGate(time.Second)
	g.SetToken("tok")
	done := false
	g.OnChange(func(active bool) {
		if !active {
			done = true
		}
	})
	g.Clear()
	if !done {
		t.Fatalf("logout listener must run synchronously")
	}
}

func TestGateGraceWindowSwallowsStale401(t *testing.T) {
	g := NewGate(5 * time.Second)
	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	g.SetToken("tok")

	// 401 arriving 2s after login: stale response from the previous
	// credential, ignored
	now = now.Add(2 * time.Second)
	g.Unauthorized()
	if !g.IsActive() {
		t.Fatalf("401 within grace window ended the session")
	}

	// past the window the 401 is believed
	now = now.Add(10 * time.Second)
	g.Unauthorized()
	if g.IsActive() {
		t.Fatalf("401 past grace window must end the session")
	}
}

func TestGateUnauthorizedWhenInactive(t *testing.T) {
	g := NewGate(time.Second)
	fired := false
	g.OnChange(func(bool) { fired = true })
	g.Unauthorized()
	if fired {
		t.Fatalf("401 on an inactive gate must be a no-op")
	}
}

func TestGateEmptyTokenClears(t *testing.T) {
	g := NewGate(time.Second)
	g.SetToken("tok")
	g.SetToken("")
	if g.IsActive() {
		t.Fatalf("empty token must clear the session")
	}
}
