package mock

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/torosent/courier/internal/httpclient"
)

// Record is one matched request with the response it got. Err is set when
// the rule simulated a failure.
type Record struct {
	Pending  *httpclient.PendingRequest
	Response *httpclient.Response
	Err      error
	Rule     *MockResponse
}

// Predicate matches a history record.
type Predicate func(pr *httpclient.PendingRequest, resp *httpclient.Response) bool

// ErrAssertion is matched by every failed assertion.
var ErrAssertion = errors.New("mock assertion failed")

// History returns the matched requests in match order.
func (c *Client) History() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.history))
	for i, r := range c.history {
		out[i] = *r
	}
	return out
}

// LastPendingRequest returns the most recently matched pending request.
func (c *Client) LastPendingRequest() *httpclient.PendingRequest {
	if r, ok := c.last(); ok {
		return r.Pending
	}
	return nil
}

// LastRequest returns the definition behind the most recent match.
func (c *Client) LastRequest() httpclient.Request {
	if pr := c.LastPendingRequest(); pr != nil {
		return pr.Request()
	}
	return nil
}

// LastResponse returns the most recent mocked response.
func (c *Client) LastResponse() *httpclient.Response {
	if r, ok := c.last(); ok {
		return r.Response
	}
	return nil
}

func (c *Client) last() (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return Record{}, false
	}
	return *c.history[len(c.history)-1], true
}

// AssertSent checks that a matched request satisfies criteria: a request
// value (compared by type), a URL pattern string, or a Predicate.
func (c *Client) AssertSent(criteria any) error {
	n, err := c.count(criteria)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: expected a request matching %s, none was sent", ErrAssertion, describe(criteria))
	}
	return nil
}

// AssertNotSent checks that no matched request satisfies criteria.
func (c *Client) AssertNotSent(criteria any) error {
	n, err := c.count(criteria)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: expected no request matching %s, %d were sent", ErrAssertion, describe(criteria), n)
	}
	return nil
}

// AssertSentJSON checks that a request of req's type was sent with a JSON
// body equal to data.
func (c *Client) AssertSentJSON(req httpclient.Request, data map[string]any) error {
	want, err := normalizeJSON(data)
	if err != nil {
		return err
	}
	typ := reflect.TypeOf(req)
	return c.AssertSent(Predicate(func(pr *httpclient.PendingRequest, _ *httpclient.Response) bool {
		if reflect.TypeOf(pr.Request()) != typ || pr.Body() == nil {
			return false
		}
		raw, err := pr.Body().Bytes()
		if err != nil {
			return false
		}
		var got any
		if err := json.Unmarshal(raw, &got); err != nil {
			return false
		}
		return reflect.DeepEqual(got, want)
	}))
}

// AssertSentCount checks the number of matched requests.
func (c *Client) AssertSentCount(n int) error {
	c.mu.Lock()
	got := len(c.history)
	c.mu.Unlock()
	if got != n {
		return fmt.Errorf("%w: expected %d requests, %d were sent", ErrAssertion, n, got)
	}
	return nil
}

// AssertNothingSent checks that no request was matched.
func (c *Client) AssertNothingSent() error {
	c.mu.Lock()
	got := len(c.history)
	c.mu.Unlock()
	if got != 0 {
		return fmt.Errorf("%w: expected no requests, %d were sent", ErrAssertion, got)
	}
	return nil
}

func (c *Client) count(criteria any) (int, error) {
	match, err := matcher(criteria)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range c.History() {
		if match(r.Pending, r.Response) {
			n++
		}
	}
	return n, nil
}

func matcher(criteria any) (Predicate, error) {
	switch v := criteria.(type) {
	case Predicate:
		return v, nil
	case func(*httpclient.PendingRequest, *httpclient.Response) bool:
		return v, nil
	case httpclient.Request:
		typ := reflect.TypeOf(v)
		return func(pr *httpclient.PendingRequest, _ *httpclient.Response) bool {
			return reflect.TypeOf(pr.Request()) == typ
		}, nil
	case string:
		p := compilePattern(v)
		return func(pr *httpclient.PendingRequest, _ *httpclient.Response) bool {
			return p.match(pr.URL())
		}, nil
	}
	return nil, fmt.Errorf("unsupported assertion criteria %T", criteria)
}

func describe(criteria any) string {
	switch v := criteria.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case httpclient.Request:
		return reflect.TypeOf(v).String()
	}
	return "the predicate"
}

func normalizeJSON(v any) (any, error) {
	data, err := encodeJSON(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// urlPattern matches URLs with * as a wildcard. A pattern without a scheme
// also matches the URL's path.
type urlPattern struct {
	raw string
	re  *regexp.Regexp
}

func compilePattern(raw string) *urlPattern {
	parts := strings.Split(raw, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return &urlPattern{raw: raw, re: regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")}
}

func (p *urlPattern) match(u string) bool {
	if p.re.MatchString(u) {
		return true
	}
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return p.re.MatchString(rest[j:]) || p.re.MatchString(rest[j+1:]) || p.re.MatchString(rest)
		}
		return p.re.MatchString(rest)
	}
	return false
}
