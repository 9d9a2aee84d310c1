package sender

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// NewClient returns an *http.Client tuned for API traffic.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NetSender sends requests with an *http.Client. Response bodies are read in
// full before Send returns, so callers never hold a connection open.
type NetSender struct {
	Client *http.Client
}

// NewNetSender returns a NetSender over NewClient(timeout).
func NewNetSender(timeout time.Duration) *NetSender {
	return &NetSender{Client: NewClient(timeout)}
}

func (s *NetSender) client() *http.Client {
	if s == nil || s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}

func (s *NetSender) Send(ctx context.Context, req *http.Request, opts Options) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := bufferBody(req); err != nil {
		return nil, Wrap(req, err)
	}

	resp, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if opts.Digest != nil && resp.StatusCode == http.StatusUnauthorized {
		challenge := digestChallenge(resp.Header)
		if challenge != nil {
			retry, err := rewind(req)
			if err != nil {
				return nil, Wrap(req, err)
			}
			retry.Header.Set("Authorization", challenge.authorize(req.Method, req.URL.RequestURI(), *opts.Digest))
			return s.do(ctx, retry)
		}
	}
	return resp, nil
}

func (s *NetSender) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := s.client().Do(req.WithContext(ctx))
	if err != nil {
		return nil, Wrap(req, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(req, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	return resp, nil
}

// bufferBody makes the request body replayable for digest retries.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		b, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = b
	}
	return out, nil
}

func isDigest(value string) bool {
	return len(value) > 7 && strings.EqualFold(value[:7], "digest ")
}
