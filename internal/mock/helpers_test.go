package mock

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/sender"
)

type apiConnector struct {
	httpclient.Definition
}

func (c *apiConnector) ResolveBaseURL() string { return "https://api.example.com" }

type getUser struct {
	httpclient.Definition
}

func (r *getUser) Method() string          { return http.MethodGet }
func (r *getUser) ResolveEndpoint() string { return "/user" }

type listPosts struct {
	httpclient.Definition
}

func (r *listPosts) Method() string          { return http.MethodGet }
func (r *listPosts) ResolveEndpoint() string { return "/posts" }

type createUser struct {
	httpclient.Definition
	name string
}

func (r *createUser) Method() string          { return http.MethodPost }
func (r *createUser) ResolveEndpoint() string { return "/users" }

func (r *createUser) DefaultBody() (body.Repository, error) {
	b, err := body.NewJSON(map[string]any{"name": r.name})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// countingSender answers every request with a JSON body and counts calls.
type countingSender struct {
	calls atomic.Int32
	body  string
}

func (s *countingSender) Send(ctx context.Context, req *http.Request, opts sender.Options) (*http.Response, error) {
	s.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    req,
	}, nil
}

// failSender fails the test when a request reaches the network.
func failSender(t *testing.T) sender.Sender {
	t.Helper()
	return sender.Func(func(ctx context.Context, req *http.Request, opts sender.Options) (*http.Response, error) {
		t.Errorf("unexpected network request %s %s", req.Method, req.URL)
		return nil, io.ErrUnexpectedEOF
	})
}

func newConnector(s sender.Sender) *apiConnector {
	c := &apiConnector{}
	c.WithSender(s)
	return c
}

func send(t *testing.T, c httpclient.Connector, r httpclient.Request, opts ...httpclient.SendOption) *httpclient.Response {
	t.Helper()
	resp, err := httpclient.Send(context.Background(), c, r, opts...)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	return resp
}
