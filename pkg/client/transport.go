package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"

	"msgsync/pkg/logger"
)

// Doer is the unified outbound transport used by the REST client. Header
// values are single-valued; the response body is fully read and returned.
// Implementations must honor ctx cancellation and deadlines.
type Doer interface {
	Do(ctx context.Context, method, url string, header map[string]string, body []byte) (status int, resp []byte, err error)
}

// NetHTTPDoer adapts net/http into the Doer interface.
type NetHTTPDoer struct {
	Client *http.Client
}

// NewNetHTTPDoer returns a Doer over a default net/http client. Per-request
// deadlines come from the caller's context, so no client-level timeout is
// set here.
func NewNetHTTPDoer() *NetHTTPDoer {
	return &NetHTTPDoer{Client: &http.Client{}}
}

// NewNetHTTPDoerInsecure skips TLS certificate verification. Dev only.
func NewNetHTTPDoerInsecure() *NetHTTPDoer {
	return &NetHTTPDoer{Client: &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
	}}
}

func (d *NetHTTPDoer) Do(ctx context.Context, method, url string, header map[string]string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	logger.LogRequest(req)
	res, err := d.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
