// Package stubapi is an in-memory implementation of the marketplace
// messaging REST surface. It backs cmd/marketstub for local development
// and serves as the fixture for the client tests.
package stubapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"msgsync/pkg/models"
)

// User is an account known to the stub. Token authenticates as that user.
type User struct {
	ID    string
	Name  string
	Token string
}

// Stub holds the in-memory message state behind the handler.
type Stub struct {
	mu       sync.Mutex
	users    map[string]User // by token
	byID     map[string]User
	messages []models.Message
	nextID   int
}

func New() *Stub {
	return &Stub{users: map[string]User{}, byID: map[string]User{}}
}

// AddUser registers an account.
func (s *Stub) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Token] = u
	s.byID[u.ID] = u
}

// Seed inserts a canonical message directly, bypassing the send endpoint.
func (s *Stub) Seed(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		s.nextID++
		msg.ID = fmt.Sprintf("m-%d", s.nextID)
	}
	s.messages = append(s.messages, msg)
}

// Handler returns the router implementing the messaging endpoints.
func (s *Stub) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/messages/conversations", s.auth(s.conversations)).Methods(http.MethodGet)
	r.HandleFunc("/messages/unread/count", s.auth(s.unreadCount)).Methods(http.MethodGet)
	r.HandleFunc("/messages/send", s.auth(s.send)).Methods(http.MethodPost)
	r.HandleFunc("/messages/{partnerID}/mark-read", s.auth(s.markRead)).Methods(http.MethodPost)
	r.HandleFunc("/messages/{partnerID}", s.auth(s.listMessages)).Methods(http.MethodGet)
	return r
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u User)

func (s *Stub) auth(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		u, ok := s.users[tok]
		s.mu.Unlock()
		if tok == "" || !ok {
			http.Error(w, `{"detail":"Not authenticated"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r, u)
	}
}

func (s *Stub) conversations(w http.ResponseWriter, r *http.Request, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := map[string]models.Message{}
	unread := map[string]int{}
	for _, m := range s.messages {
		var partner string
		switch {
		case m.SenderID == u.ID:
			partner = m.RecipientID
		case m.RecipientID == u.ID:
			partner = m.SenderID
		default:
			continue
		}
		if cur, ok := latest[partner]; !ok || m.CreatedAt.After(cur.CreatedAt.Time) {
			latest[partner] = m
		}
		if m.RecipientID == u.ID && !m.Read {
			unread[partner]++
		}
	}

	convs := make([]models.Conversation, 0, len(latest))
	for partner, m := range latest {
		name := m.SenderName
		if m.SenderID == u.ID {
			name = m.RecipientName
		}
		convs = append(convs, models.Conversation{
			PartnerID:   partner,
			PartnerName: name,
			UnreadCount: unread[partner],
			LastMessage: models.LastMessage{
				ID:           m.ID,
				Content:      m.Content,
				CreatedAt:    m.CreatedAt,
				SenderID:     m.SenderID,
				Read:         m.Read,
				ListingID:    m.ListingID,
				ListingTitle: m.ListingTitle,
			},
		})
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessage.CreatedAt.After(convs[j].LastMessage.CreatedAt.Time)
	})
	_ = json.NewEncoder(w).Encode(map[string]any{"conversations": convs})
}

func (s *Stub) listMessages(w http.ResponseWriter, r *http.Request, u User) {
	partnerID := mux.Vars(r)["partnerID"]
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			http.Error(w, `{"detail":"Invalid date format for 'before' parameter"}`, http.StatusBadRequest)
			return
		}
		before = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if !(m.SenderID == u.ID && m.RecipientID == partnerID) && !(m.SenderID == partnerID && m.RecipientID == u.ID) {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, m)
	}
	// newest first for the limit cut, then ascending like the backend
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt.Time) })
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": out})
}

func (s *Stub) send(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		RecipientID string `json:"recipient_id"`
		Content     string `json:"content"`
		ListingID   string `json:"listing_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"detail":"invalid json"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	recipient, ok := s.byID[req.RecipientID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, `{"detail":"Recipient not found"}`, http.StatusNotFound)
		return
	}
	s.nextID++
	msg := models.Message{
		ID:            fmt.Sprintf("m-%d", s.nextID),
		SenderID:      u.ID,
		SenderName:    u.Name,
		RecipientID:   recipient.ID,
		RecipientName: recipient.Name,
		Content:       req.Content,
		CreatedAt:     models.At(time.Now()),
		ListingID:     req.ListingID,
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{
		"message":      "Message sent successfully",
		"message_id":   msg.ID,
		"message_data": msg,
	})
}

func (s *Stub) markRead(w http.ResponseWriter, r *http.Request, u User) {
	partnerID := mux.Vars(r)["partnerID"]
	s.mu.Lock()
	n := 0
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == partnerID && m.RecipientID == u.ID && !m.Read {
			m.Read = true
			n++
		}
	}
	s.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]int{"marked_read": n})
}

func (s *Stub) unreadCount(w http.ResponseWriter, r *http.Request, u User) {
	s.mu.Lock()
	n := 0
	for _, m := range s.messages {
		if m.RecipientID == u.ID && !m.Read {
			n++
		}
	}
	s.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]int{"unread_count": n})
}
