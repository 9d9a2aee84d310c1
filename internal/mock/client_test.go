package mock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/sender"
)

func TestSequenceAnswersInOrder(t *testing.T) {
	mc := Sequence(
		Make(map[string]any{"name": "Sam"}),
		Make(map[string]any{"name": "Alex"}).WithStatus(http.StatusCreated),
		Make("gone").WithStatus(http.StatusNotFound),
	)
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	want := []struct {
		status int
		body   string
	}{
		{http.StatusOK, `{"name":"Sam"}`},
		{http.StatusCreated, `{"name":"Alex"}`},
		{http.StatusNotFound, "gone"},
	}
	for i, w := range want {
		resp := send(t, conn, &getUser{})
		if resp.Status() != w.status || resp.String() != w.body {
			t.Fatalf("response %d = %d %q, want %d %q", i, resp.Status(), resp.String(), w.status, w.body)
		}
		if !resp.IsMocked() {
			t.Fatalf("response %d IsMocked() = false", i)
		}
	}
	if !mc.IsEmpty() {
		t.Fatal("IsEmpty() = false after sequence drained")
	}
	if err := mc.AssertSentCount(3); err != nil {
		t.Fatal(err)
	}
}

func TestMakeSetsJSONContentType(t *testing.T) {
	conn := newConnector(failSender(t))
	conn.WithMockClient(Sequence(Make(map[string]any{"ok": true}).WithHeader("X-Trace", "abc")))

	resp := send(t, conn, &getUser{})
	if got := resp.Header("content-type"); got != "application/json" {
		t.Fatalf("Header(content-type) = %q, want application/json", got)
	}
	if got := resp.Header("X-Trace"); got != "abc" {
		t.Fatalf("Header(X-Trace) = %q, want abc", got)
	}
}

func TestKeyedRulePrecedence(t *testing.T) {
	mc := NewClient(PreventStrayRequests()).
		Push(Make("sequence")).
		For(&getUser{}, Make("request")).
		For(&apiConnector{}, Make("connector"))
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	if got := send(t, conn, &getUser{}).String(); got != "request" {
		t.Fatalf("getUser body = %q, want request", got)
	}
	if got := send(t, conn, &listPosts{}).String(); got != "connector" {
		t.Fatalf("listPosts body = %q, want connector", got)
	}
	// keyed rules are unlimited by default
	if got := send(t, conn, &getUser{}).String(); got != "request" {
		t.Fatalf("second getUser body = %q, want request", got)
	}
	if mc.IsEmpty() {
		t.Fatal("IsEmpty() = true with unlimited keyed rules")
	}
}

func TestURLPatternRules(t *testing.T) {
	mc := NewClient(PreventStrayRequests()).
		For("/posts", Make("path")).
		For("https://api.example.com/us*", Make("wildcard"))
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	if got := send(t, conn, &listPosts{}).String(); got != "path" {
		t.Fatalf("listPosts body = %q, want path", got)
	}
	if got := send(t, conn, &getUser{}).String(); got != "wildcard" {
		t.Fatalf("getUser body = %q, want wildcard", got)
	}
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"/user", "https://api.example.com/user", true},
		{"user", "https://api.example.com/user", true},
		{"api.example.com/*", "https://api.example.com/user", true},
		{"*", "https://api.example.com/user", true},
		{"https://api.example.com/user", "https://api.example.com/user", true},
		{"/user", "https://api.example.com/users", false},
		{"/us?r", "https://api.example.com/user", false},
		{"https://other.example.com/*", "https://api.example.com/user", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.url, func(t *testing.T) {
			if got := compilePattern(tt.pattern).match(tt.url); got != tt.want {
				t.Fatalf("match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimesAndRepeat(t *testing.T) {
	mc := NewClient(PreventStrayRequests()).
		For(&getUser{}, Make("twice").Times(2)).
		Push(Make("forever").Repeat())
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	for i := 0; i < 2; i++ {
		if got := send(t, conn, &getUser{}).String(); got != "twice" {
			t.Fatalf("getUser %d body = %q, want twice", i, got)
		}
	}
	for i := 0; i < 3; i++ {
		if got := send(t, conn, &getUser{}).String(); got != "forever" {
			t.Fatalf("getUser after limit body = %q, want forever", got)
		}
	}
}

func TestStrayRequestsPassThrough(t *testing.T) {
	net := &countingSender{body: `{"real":true}`}
	mc := NewClient().For(&getUser{}, Make("mocked"))
	conn := newConnector(net)
	conn.WithMockClient(mc)

	send(t, conn, &getUser{})
	resp := send(t, conn, &listPosts{})
	if resp.IsMocked() || resp.String() != `{"real":true}` {
		t.Fatalf("stray response = %q mocked=%v, want real response", resp.String(), resp.IsMocked())
	}
	if got := net.calls.Load(); got != 1 {
		t.Fatalf("sender calls = %d, want 1", got)
	}
	// strays are not part of the history
	if err := mc.AssertSentCount(1); err != nil {
		t.Fatal(err)
	}
	if err := mc.AssertNotSent(&listPosts{}); err != nil {
		t.Fatal(err)
	}
}

func TestPreventStrayRequests(t *testing.T) {
	conn := newConnector(failSender(t))
	conn.WithMockClient(NewClient(PreventStrayRequests()))

	_, err := httpclient.Send(context.Background(), conn, &getUser{})
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("Send() error = %v, want ErrRequestNotFound", err)
	}
	var nf *RequestNotFoundError
	if !errors.As(err, &nf) || nf.Method != http.MethodGet || nf.URL != "https://api.example.com/user" {
		t.Fatalf("Send() error = %#v", err)
	}
}

func TestErrorRuleIsTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	mc := Sequence(Error(boom))
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	_, err := httpclient.Send(context.Background(), conn, &getUser{})
	if !errors.Is(err, sender.ErrTransport) || !errors.Is(err, boom) {
		t.Fatalf("Send() error = %v, want transport error wrapping %v", err, boom)
	}
	h := mc.History()
	if len(h) != 1 || !errors.Is(h[0].Err, boom) || h[0].Response != nil {
		t.Fatalf("History() = %+v", h)
	}
}

func TestMakeInvalidBody(t *testing.T) {
	conn := newConnector(failSender(t))
	conn.WithMockClient(Sequence(Make(map[string]any{"ch": make(chan int)})))

	_, err := httpclient.Send(context.Background(), conn, &getUser{})
	if err == nil || errors.Is(err, sender.ErrTransport) {
		t.Fatalf("Send() error = %v, want encode error", err)
	}
}

func TestMergeAndThroughRunInOrder(t *testing.T) {
	m := Make(map[string]any{
		"count": 1,
		"data":  []any{map[string]any{"name": "Sam", "twitter": "@old"}},
	}).
		Merge(map[string]any{"count": 2, "data.0.twitter": "@sammyjo20"}).
		Through(func(data any) (any, error) {
			obj := data.(map[string]any)
			obj["seen"] = obj["count"]
			return obj, nil
		})
	conn := newConnector(failSender(t))
	conn.WithMockClient(Sequence(m))

	resp := send(t, conn, &getUser{})
	if got := resp.JSON("data.0.twitter").String(); got != "@sammyjo20" {
		t.Fatalf("JSON(data.0.twitter) = %q, want @sammyjo20", got)
	}
	if got := resp.JSON("data.0.name").String(); got != "Sam" {
		t.Fatalf("JSON(data.0.name) = %q, want Sam", got)
	}
	if got := resp.JSON("seen").Int(); got != 2 {
		t.Fatalf("JSON(seen) = %d, want 2", got)
	}
}

func TestMergeData(t *testing.T) {
	tests := []struct {
		name    string
		data    any
		values  map[string]any
		want    string
		wantErr bool
	}{
		{
			name:   "plain before dotted",
			data:   map[string]any{},
			values: map[string]any{"user.name": "Sam", "user": map[string]any{"id": 1}},
			want:   `{"user":{"id":1,"name":"Sam"}}`,
		},
		{
			name:   "creates missing objects",
			data:   nil,
			values: map[string]any{"a.b.c": true},
			want:   `{"a":{"b":{"c":true}}}`,
		},
		{
			name:   "appends one past the end",
			data:   map[string]any{"list": []any{"x"}},
			values: map[string]any{"list.1": "y"},
			want:   `{"list":["x","y"]}`,
		},
		{
			name:    "index out of range",
			data:    map[string]any{"list": []any{}},
			values:  map[string]any{"list.3": "y"},
			wantErr: true,
		},
		{
			name:    "descend into scalar",
			data:    map[string]any{"name": "Sam"},
			values:  map[string]any{"name.first": "S"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeData(tt.data, tt.values)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("mergeData() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("mergeData() error = %v", err)
			}
			out, err := encodeJSON(got)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.want {
				t.Fatalf("mergeData() = %s, want %s", out, tt.want)
			}
		})
	}
}

func TestMergeKeepsCallerValues(t *testing.T) {
	nested := map[string]any{"a": 1}
	mc := Sequence(Make(map[string]any{}).Merge(map[string]any{"user": nested, "user.b": 2}).Repeat())
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	for i := 0; i < 2; i++ {
		resp, err := httpclient.Send(context.Background(), conn, &getUser{})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if got := resp.String(); got != `{"user":{"a":1,"b":2}}` {
			t.Fatalf("send %d body = %s", i, got)
		}
	}
	if len(nested) != 1 || nested["a"] != 1 {
		t.Fatalf("Merge values changed to %v, want map[a:1]", nested)
	}
}

func TestHistoryKeepsEachSendsBody(t *testing.T) {
	mc := Sequence(Make("ok").Repeat())
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)
	conn.Middleware().OnRequest(func(ctx context.Context, pr *httpclient.PendingRequest) (*httpclient.Response, error) {
		pr.Body().(*body.JSON).Add("sends", len(mc.History())+1)
		return nil, nil
	})

	req := &createUser{name: "Sam"}
	for i := 0; i < 2; i++ {
		if _, err := httpclient.Send(context.Background(), conn, req); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	history := mc.History()
	if len(history) != 2 {
		t.Fatalf("History() has %d records, want 2", len(history))
	}
	for i, want := range []string{`{"name":"Sam","sends":1}`, `{"name":"Sam","sends":2}`} {
		if got := history[i].Pending.Body().String(); got != want {
			t.Errorf("History()[%d] body = %s, want %s", i, got, want)
		}
	}
	resolved, err := httpclient.ResolveBody(req)
	if err != nil {
		t.Fatalf("ResolveBody() error = %v", err)
	}
	if got := resolved.String(); got != `{"name":"Sam"}` {
		t.Errorf("request body = %s, want it untouched", got)
	}
}

func TestGlobalMocks(t *testing.T) {
	global := NewGlobal()
	if global.Current() != nil {
		t.Fatal("Current() != nil on empty registry")
	}
	global.Make(Make("global").Repeat())

	conn := newConnector(failSender(t))
	conn.WithGlobalMocks(global)
	if got := send(t, conn, &getUser{}).String(); got != "global" {
		t.Fatalf("body = %q, want global", got)
	}

	local := Sequence(Make("local"))
	conn.WithMockClient(local)
	if got := send(t, conn, &getUser{}).String(); got != "local" {
		t.Fatalf("body with local client = %q, want local", got)
	}
	if err := global.Resolve().AssertSentCount(1); err != nil {
		t.Fatal(err)
	}

	global.Destroy()
	if global.Resolve() != nil || global.Current() != nil {
		t.Fatal("registry not empty after Destroy()")
	}
}

func TestGlobalMocksOnRequest(t *testing.T) {
	global := NewGlobal()
	global.Make(Make("from request registry"))

	req := &getUser{}
	req.WithGlobalMocks(global)
	if got := send(t, newConnector(failSender(t)), req).String(); got != "from request registry" {
		t.Fatalf("body = %q", got)
	}
}

func TestSendOptionOverridesConnectorClient(t *testing.T) {
	connClient := Sequence(Make("connector"))
	callClient := Sequence(Make("call"))
	conn := newConnector(failSender(t))
	conn.WithMockClient(connClient)

	if got := send(t, conn, &getUser{}, httpclient.WithMockClient(callClient)).String(); got != "call" {
		t.Fatalf("body = %q, want call", got)
	}
	if err := connClient.AssertNothingSent(); err != nil {
		t.Fatal(err)
	}
}

func TestAssertions(t *testing.T) {
	mc := NewClient().
		For(&getUser{}, Make(map[string]any{"name": "Sam"})).
		For(&createUser{}, Make("").WithStatus(http.StatusCreated))
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	if err := mc.AssertNothingSent(); err != nil {
		t.Fatal(err)
	}
	send(t, conn, &getUser{})
	send(t, conn, &createUser{name: "Sam"})

	checks := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"sent by type", mc.AssertSent(&getUser{}), false},
		{"sent by url", mc.AssertSent("/users"), false},
		{"sent by predicate", mc.AssertSent(func(pr *httpclient.PendingRequest, resp *httpclient.Response) bool {
			return pr.Method() == http.MethodPost && resp.Status() == http.StatusCreated
		}), false},
		{"not sent", mc.AssertNotSent(&listPosts{}), false},
		{"sent json", mc.AssertSentJSON(&createUser{}, map[string]any{"name": "Sam"}), false},
		{"count", mc.AssertSentCount(2), false},
		{"missing type", mc.AssertSent(&listPosts{}), true},
		{"unexpected type", mc.AssertNotSent(&getUser{}), true},
		{"wrong json", mc.AssertSentJSON(&createUser{}, map[string]any{"name": "Alex"}), true},
		{"wrong count", mc.AssertSentCount(3), true},
		{"nothing sent", mc.AssertNothingSent(), true},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if c.wantErr {
				if !errors.Is(c.err, ErrAssertion) {
					t.Fatalf("assertion error = %v, want ErrAssertion", c.err)
				}
				return
			}
			if c.err != nil {
				t.Fatalf("assertion error = %v", c.err)
			}
		})
	}

	if err := mc.AssertSent(42); err == nil || errors.Is(err, ErrAssertion) {
		t.Fatalf("AssertSent(42) error = %v, want unsupported criteria", err)
	}
}

func TestLastAccessors(t *testing.T) {
	mc := NewClient()
	if mc.LastPendingRequest() != nil || mc.LastResponse() != nil || mc.LastRequest() != nil {
		t.Fatal("Last accessors non-nil on empty history")
	}
	mc.For(&getUser{}, Make("a")).For(&listPosts{}, Make("b"))
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	send(t, conn, &getUser{})
	posts := &listPosts{}
	resp := send(t, conn, posts)

	if mc.LastRequest() != posts {
		t.Fatalf("LastRequest() = %v, want the posts request", mc.LastRequest())
	}
	if mc.LastResponse() != resp {
		t.Fatal("LastResponse() is not the returned response")
	}
	if got := mc.LastPendingRequest().URL(); got != "https://api.example.com/posts" {
		t.Fatalf("LastPendingRequest().URL() = %q", got)
	}
}

func TestConcurrentSequence(t *testing.T) {
	const n = 50
	responses := make([]*MockResponse, n)
	for i := range responses {
		responses[i] = Make(fmt.Sprintf("%d", i))
	}
	mc := Sequence(responses...)
	conn := newConnector(failSender(t))
	conn.WithMockClient(mc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := httpclient.Send(context.Background(), conn, &getUser{})
			if err != nil {
				t.Errorf("Send() error = %v", err)
				return
			}
			mu.Lock()
			seen[resp.String()] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("distinct responses = %d, want %d", len(seen), n)
	}
	if err := mc.AssertSentCount(n); err != nil {
		t.Fatal(err)
	}
	if !mc.IsEmpty() {
		t.Fatal("IsEmpty() = false after all responses used")
	}
}

func TestForPanicsOnUnsupportedKey(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("For(42) did not panic")
		}
	}()
	NewClient().For(42, Make("x"))
}
