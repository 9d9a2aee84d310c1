package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/courier/internal/auth"
	"github.com/torosent/courier/internal/bag"
	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/sender"
)

// PendingRequest is the merged, ready-to-send form of one call. It is built
// fresh for every send. Its bags are copies, so hooks that change them leave
// the connector and the request untouched.
type PendingRequest struct {
	id        string
	createdAt time.Time

	connector Connector
	request   Request

	method string
	url    string

	headers *bag.Bag[string]
	query   *bag.Bag[string]
	config  *bag.Bag[any]
	body    body.Repository

	authenticator auth.Authenticator
	middleware    *Pipeline
}

// CreatePendingRequest merges c and r into a pending request without sending it.
//
// Merge order, later wins: connector defaults, request defaults, Boot hooks
// (connector then request), runtime bags (connector then request). A body
// implying a Content-Type sets it unless a value is already present. The
// resolved authenticator is applied last.
func CreatePendingRequest(ctx context.Context, c Connector, r Request) (*PendingRequest, error) {
	if c == nil || r == nil {
		return nil, errors.New("connector and request are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cd, rd := c.definition(), r.definition()

	method := strings.ToUpper(strings.TrimSpace(r.Method()))
	if method == "" {
		method = http.MethodGet
	}

	pr := &PendingRequest{
		id:        ulid.Make().String(),
		createdAt: time.Now(),
		connector: c,
		request:   r,
		method:    method,
		url:       JoinURL(c.ResolveBaseURL(), r.ResolveEndpoint()),
		headers:   bag.NewHeaders(),
		query:     bag.New[string](),
		config:    bag.New[any](),
		// Connector hooks run before request hooks.
		middleware: NewPipeline().Merge(cd.middleware, rd.middleware),
	}

	for _, def := range []any{c, r} {
		if d, ok := def.(HeaderDefaulter); ok {
			pr.headers.AddMap(d.DefaultHeaders())
		}
		if d, ok := def.(QueryDefaulter); ok {
			pr.query.AddMap(d.DefaultQuery())
		}
		if d, ok := def.(ConfigDefaulter); ok {
			pr.config.AddMap(d.DefaultConfig())
		}
	}

	b, err := ResolveBody(r)
	if err != nil {
		return nil, err
	}
	if b != nil {
		pr.body = b.Clone()
	}

	for _, def := range []any{c, r} {
		if booter, ok := def.(Booter); ok {
			if err := booter.Boot(ctx, pr); err != nil {
				return nil, &PipelineHookError{Stage: StageBoot, Err: err}
			}
		}
	}

	pr.headers.Merge(cd.headers, rd.headers)
	pr.query.Merge(cd.query, rd.query)
	pr.config.Merge(cd.config, rd.config)

	if ct, ok := pr.body.(body.ContentTyper); ok && !pr.headers.Has("Content-Type") {
		pr.headers.Add("Content-Type", ct.ContentType())
	}

	pr.authenticator = ResolveAuthenticator(c, r)
	if pr.authenticator != nil {
		if err := pr.authenticator.Apply(ctx, pr); err != nil {
			return nil, fmt.Errorf("apply authenticator: %w", err)
		}
	}

	return pr, nil
}

// JoinURL appends endpoint to base with exactly one slash between them. An
// absolute endpoint URL is returned unchanged.
func JoinURL(base, endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	base = strings.TrimRight(base, "/")
	endpoint = strings.TrimLeft(endpoint, "/")
	if endpoint == "" {
		return base
	}
	if base == "" {
		return "/" + endpoint
	}
	return base + "/" + endpoint
}

// ID is a ULID unique to this pending request.
func (p *PendingRequest) ID() string { return p.id }

func (p *PendingRequest) CreatedAt() time.Time { return p.createdAt }

func (p *PendingRequest) Connector() Connector { return p.connector }
func (p *PendingRequest) Request() Request     { return p.request }

func (p *PendingRequest) Method() string { return p.method }

// URL returns the target without the query bag applied.
func (p *PendingRequest) URL() string { return p.url }

// SetURL replaces the target URL.
func (p *PendingRequest) SetURL(u string) { p.url = u }

// FullURL returns the target with the query bag appended in insertion order.
func (p *PendingRequest) FullURL() string {
	if p.query.IsEmpty() {
		return p.url
	}
	pairs := make([]string, 0, p.query.Len())
	for _, e := range p.query.Entries() {
		pairs = append(pairs, url.QueryEscape(e.Key)+"="+url.QueryEscape(e.Value))
	}
	sep := "?"
	if strings.Contains(p.url, "?") {
		sep = "&"
	}
	return p.url + sep + strings.Join(pairs, "&")
}

func (p *PendingRequest) Headers() *bag.Bag[string] { return p.headers }
func (p *PendingRequest) Query() *bag.Bag[string]   { return p.query }
func (p *PendingRequest) Config() *bag.Bag[any]     { return p.config }

// Body returns the body, or nil when the request has none.
func (p *PendingRequest) Body() body.Repository { return p.body }

// SetBody replaces the body.
func (p *PendingRequest) SetBody(b body.Repository) { p.body = b }

func (p *PendingRequest) Authenticator() auth.Authenticator { return p.authenticator }

func (p *PendingRequest) Middleware() *Pipeline { return p.middleware }

// SenderOptions reads the transport settings from the config bag. Timeouts
// may be a time.Duration, a duration string or a number of seconds.
func (p *PendingRequest) SenderOptions() sender.Options {
	var opts sender.Options
	switch v := p.config.Value(sender.ConfigTimeout).(type) {
	case time.Duration:
		opts.Timeout = v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			opts.Timeout = d
		}
	case int:
		opts.Timeout = time.Duration(v) * time.Second
	case float64:
		opts.Timeout = time.Duration(v * float64(time.Second))
	}
	switch v := p.config.Value(sender.ConfigDigest).(type) {
	case *sender.DigestCredentials:
		opts.Digest = v
	case sender.DigestCredentials:
		opts.Digest = &v
	}
	return opts
}

// ToHTTPRequest renders the pending request. The body is rendered once and
// can be replayed through GetBody.
func (p *PendingRequest) ToHTTPRequest(ctx context.Context) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var data []byte
	if p.body != nil {
		var err error
		if data, err = p.body.Bytes(); err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.FullURL(), nil)
	if err != nil {
		return nil, err
	}
	if p.body != nil {
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.ContentLength = int64(len(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	for _, e := range p.headers.Entries() {
		key := strings.TrimSpace(e.Key)
		if key == "" || strings.ContainsAny(key, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", e.Key)
		}
		canonicalKey := http.CanonicalHeaderKey(key)
		if strings.ContainsAny(e.Value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		req.Header.Set(canonicalKey, e.Value)
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	return req, nil
}
