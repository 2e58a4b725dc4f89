package client

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/valyala/fasthttp"
)

// FastHTTPDoer adapts a fasthttp.Client into the Doer interface. fasthttp
// has no context plumbing, so the ctx deadline is translated into
// DoDeadline and cancellation is checked after the call.
type FastHTTPDoer struct {
	Client *fasthttp.Client
}

func NewFastHTTPDoer() *FastHTTPDoer {
	return &FastHTTPDoer{Client: &fasthttp.Client{}}
}

// NewFastHTTPDoerInsecure skips TLS certificate verification. Dev only.
func NewFastHTTPDoerInsecure() *FastHTTPDoer {
	return &FastHTTPDoer{Client: &fasthttp.Client{
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	}}
}

func (d *FastHTTPDoer) Do(ctx context.Context, method, url string, header map[string]string, body []byte) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	if err := d.Client.DoDeadline(req, res, deadline); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, nil, cerr
		}
		return 0, nil, err
	}
	// body is reused by fasthttp once released; copy out
	out := append([]byte(nil), res.Body()...)
	return res.StatusCode(), out, nil
}
