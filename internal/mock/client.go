package mock

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/sender"
)

// Client answers pending requests from registered rules instead of the
// network. Rules keyed by request type, connector type or URL pattern are
// tried first, in that order; otherwise the head of the sequence answers.
//
// A Client is safe for concurrent use. Sequence rules are handed out in
// arrival order.
type Client struct {
	mu sync.Mutex

	sequence     []*rule
	byRequest    map[reflect.Type]*rule
	byConnector  map[reflect.Type]*rule
	byURL        []urlRule
	history      []*Record
	preventStray bool

	fixtures *FixtureStore
	record   bool
	logger   *zap.Logger
}

type rule struct {
	resp      *MockResponse
	remaining int // -1 is unlimited
}

func newRule(resp *MockResponse, defaultUses int) *rule {
	uses := resp.uses
	if uses == 0 {
		uses = defaultUses
	}
	return &rule{resp: resp, remaining: uses}
}

func (r *rule) available() bool { return r != nil && r.remaining != 0 }

func (r *rule) consume() {
	if r.remaining > 0 {
		r.remaining--
	}
}

type urlRule struct {
	pattern *urlPattern
	rule    *rule
}

// Option configures a Client.
type Option func(*Client)

// PreventStrayRequests fails requests no rule matches with a
// *RequestNotFoundError instead of sending them.
func PreventStrayRequests() Option {
	return func(c *Client) { c.preventStray = true }
}

// WithFixtureStore sets where Fixture rules are read from.
func WithFixtureStore(s *FixtureStore) Option {
	return func(c *Client) { c.fixtures = s }
}

// WithRecording makes a missing fixture send the request for real and save
// the response under the fixture's name. It is off by default.
func WithRecording(enabled bool) Option {
	return func(c *Client) { c.record = enabled }
}

// WithLogger sets the logger for matches and recordings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client with no rules.
func NewClient(opts ...Option) *Client {
	c := &Client{
		byRequest:   make(map[reflect.Type]*rule),
		byConnector: make(map[reflect.Type]*rule),
		fixtures:    NewFixtureStore(""),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sequence returns a client answering with responses in order.
func Sequence(responses ...*MockResponse) *Client {
	return NewClient().Push(responses...)
}

// Push appends rules to the sequence. Each answers once unless Repeat or
// Times says otherwise.
func (c *Client) Push(responses ...*MockResponse) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range responses {
		if r != nil {
			c.sequence = append(c.sequence, newRule(r, 1))
		}
	}
	return c
}

// For registers a keyed rule. key is a request (matched by its type), a
// connector (matched by its type) or a URL pattern where * matches any run
// of characters. Keyed rules answer any number of times unless Times says
// otherwise. Registering a key again replaces its rule.
func (c *Client) For(key any, resp *MockResponse) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := newRule(resp, -1)
	switch k := key.(type) {
	case httpclient.Request:
		c.byRequest[reflect.TypeOf(k)] = r
	case httpclient.Connector:
		c.byConnector[reflect.TypeOf(k)] = r
	case string:
		p := compilePattern(k)
		for i, existing := range c.byURL {
			if existing.pattern.raw == k {
				c.byURL[i].rule = r
				return c
			}
		}
		c.byURL = append(c.byURL, urlRule{pattern: p, rule: r})
	default:
		panic(fmt.Sprintf("mock: unsupported rule key %T", key))
	}
	return c
}

// Intercept implements httpclient.Interceptor.
func (c *Client) Intercept(ctx context.Context, pr *httpclient.PendingRequest, next httpclient.Dispatcher) (*httpclient.Response, error) {
	c.mu.Lock()
	matched := c.match(pr)
	var rec *Record
	if matched != nil {
		rec = &Record{Pending: pr, Rule: matched.resp}
		c.history = append(c.history, rec)
	}
	c.mu.Unlock()

	if matched == nil {
		if c.preventStray {
			return nil, &RequestNotFoundError{Method: pr.Method(), URL: pr.FullURL()}
		}
		return next(ctx, pr)
	}

	resp, err := c.resolve(ctx, pr, matched.resp, next)

	c.mu.Lock()
	rec.Response, rec.Err = resp, err
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// match finds and consumes the rule for pr. The caller holds c.mu.
func (c *Client) match(pr *httpclient.PendingRequest) *rule {
	if r := c.byRequest[reflect.TypeOf(pr.Request())]; r.available() {
		r.consume()
		return r
	}
	if r := c.byConnector[reflect.TypeOf(pr.Connector())]; r.available() {
		r.consume()
		return r
	}
	for _, u := range c.byURL {
		if u.rule.available() && u.pattern.match(pr.URL()) {
			u.rule.consume()
			return u.rule
		}
	}
	for len(c.sequence) > 0 {
		head := c.sequence[0]
		if !head.available() {
			c.sequence = c.sequence[1:]
			continue
		}
		head.consume()
		if !head.available() {
			c.sequence = c.sequence[1:]
		}
		return head
	}
	return nil
}

func (c *Client) resolve(ctx context.Context, pr *httpclient.PendingRequest, m *MockResponse, next httpclient.Dispatcher) (*httpclient.Response, error) {
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	if m.err != nil {
		return nil, &sender.TransportError{Method: pr.Method(), URL: pr.FullURL(), Err: m.err}
	}

	source := m
	if m.fixture != "" {
		recorded, err := c.fixtures.Load(m.fixture)
		switch {
		case errors.Is(err, ErrFixtureMissing) && c.record:
			return c.recordFixture(ctx, pr, m.fixture, next)
		case err != nil:
			return nil, fmt.Errorf("fixture %q: %w", m.fixture, err)
		}
		if source, err = recorded.ToMockResponse(); err != nil {
			return nil, fmt.Errorf("fixture %q: %w", m.fixture, err)
		}
	}

	data, err := m.render(source.body)
	if err != nil {
		return nil, fmt.Errorf("mock response: %w", err)
	}
	c.logger.Debug("mock matched",
		zap.String("id", pr.ID()),
		zap.String("url", pr.FullURL()),
		zap.String("fixture", m.fixture),
	)
	return httpclient.NewResponse(pr, source.status, source.headers, data), nil
}

func (c *Client) recordFixture(ctx context.Context, pr *httpclient.PendingRequest, name string, next httpclient.Dispatcher) (*httpclient.Response, error) {
	resp, err := next(ctx, pr)
	if err != nil {
		return nil, err
	}
	recorded, err := FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("record fixture %q: %w", name, err)
	}
	if err := c.fixtures.Save(name, recorded); err != nil {
		return nil, fmt.Errorf("record fixture %q: %w", name, err)
	}
	c.logger.Debug("fixture recorded", zap.String("fixture", name), zap.Int("status", resp.Status()))
	return resp, nil
}

// IsEmpty reports whether no rule can answer any more.
func (c *Client) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.sequence {
		if r.available() {
			return false
		}
	}
	for _, r := range c.byRequest {
		if r.available() {
			return false
		}
	}
	for _, r := range c.byConnector {
		if r.available() {
			return false
		}
	}
	for _, u := range c.byURL {
		if u.rule.available() {
			return false
		}
	}
	return true
}
