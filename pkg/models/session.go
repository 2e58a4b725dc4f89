package models

import "time"

// Session is the opaque bearer credential plus the moment it was issued.
// LastAuthAt suppresses spurious expiry signals from stale 401 responses
// that race a fresh login.
type Session struct {
	Token      string    `json:"token"`
	LastAuthAt time.Time `json:"last_auth_at"`
}

// Active reports whether the session carries a credential.
func (s Session) Active() bool { return s.Token != "" }
