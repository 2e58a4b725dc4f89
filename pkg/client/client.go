package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"msgsync/pkg/logger"
	"msgsync/pkg/models"
)

// Client implements API over a Doer. It attaches the bearer credential
// from the CredentialSource, enforces a per-request timeout budget and a
// coarse outbound rate limit, and maps 401 responses to ErrUnauthorized
// after notifying the session layer.
type Client struct {
	base    string
	doer    Doer
	creds   CredentialSource
	limiter *rate.Limiter
	timeout time.Duration
}

// Options tunes a Client. Zero values fall back to sane defaults.
type Options struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// New builds a Client rooted at base (e.g. "http://host:8000/api").
func New(base string, doer Doer, creds CredentialSource, opts Options) *Client {
	if doer == nil {
		doer = NewNetHTTPDoer()
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 10
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    base,
		doer:    doer,
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
	}
}

func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var out conversationsResponse
	if err := c.call(ctx, http.MethodGet, "/messages/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) Messages(ctx context.Context, partnerID string, limit int, before time.Time) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !before.IsZero() {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	path := "/messages/" + url.PathEscape(partnerID)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out messagesResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Send(ctx context.Context, req SendRequest) (models.Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.Message{}, err
	}
	var out sendResponse
	if err := c.call(ctx, http.MethodPost, "/messages/send", body, &out); err != nil {
		return models.Message{}, err
	}
	msg := out.MessageData
	if msg.ID == "" {
		msg.ID = out.MessageID
	}
	return msg, nil
}

func (c *Client) MarkRead(ctx context.Context, partnerID string) (int, error) {
	var out markReadResponse
	path := "/messages/" + url.PathEscape(partnerID) + "/mark-read"
	if err := c.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return 0, err
	}
	return out.MarkedRead, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out unreadResponse
	if err := c.call(ctx, http.MethodGet, "/messages/unread/count", nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// call performs one request against the API with the timeout budget
// applied and decodes the JSON response into out when non-nil.
func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	tok, ok := c.creds.Credential()
	if !ok {
		return ErrNoCredential
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header := map[string]string{
		"Authorization": "Bearer " + tok,
		"Accept":        "application/json",
	}
	if len(body) > 0 {
		header["Content-Type"] = "application/json"
	}
	status, resp, err := c.doer.Do(cctx, method, c.base+path, header, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if status == http.StatusUnauthorized {
		c.creds.Unauthorized()
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if status < 200 || status >= 300 {
		logger.Warn("api_request_failed", "method", method, "path", path, "status", status)
		return fmt.Errorf("%s %s: unexpected status %d", method, path, status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
