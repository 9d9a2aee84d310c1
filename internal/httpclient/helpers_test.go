package httpclient

import (
	"context"
	"net/http"

	"github.com/torosent/courier/internal/auth"
	"github.com/torosent/courier/internal/body"
)

type testConnector struct {
	Definition
	baseURL     string
	headers     map[string]string
	query       map[string]string
	config      map[string]any
	defaultAuth auth.Authenticator
	boot        func(ctx context.Context, pr *PendingRequest) error
}

func (c *testConnector) ResolveBaseURL() string            { return c.baseURL }
func (c *testConnector) DefaultHeaders() map[string]string { return c.headers }
func (c *testConnector) DefaultQuery() map[string]string   { return c.query }
func (c *testConnector) DefaultConfig() map[string]any     { return c.config }
func (c *testConnector) DefaultAuth() auth.Authenticator   { return c.defaultAuth }

func (c *testConnector) Boot(ctx context.Context, pr *PendingRequest) error {
	if c.boot == nil {
		return nil
	}
	return c.boot(ctx, pr)
}

type testRequest struct {
	Definition
	method      string
	endpoint    string
	headers     map[string]string
	query       map[string]string
	defaultAuth auth.Authenticator
	defaultBody func() (body.Repository, error)
	boot        func(ctx context.Context, pr *PendingRequest) error
}

func (r *testRequest) Method() string {
	if r.method == "" {
		return http.MethodGet
	}
	return r.method
}
func (r *testRequest) ResolveEndpoint() string           { return r.endpoint }
func (r *testRequest) DefaultHeaders() map[string]string { return r.headers }
func (r *testRequest) DefaultQuery() map[string]string   { return r.query }
func (r *testRequest) DefaultAuth() auth.Authenticator   { return r.defaultAuth }

func (r *testRequest) DefaultBody() (body.Repository, error) {
	if r.defaultBody == nil {
		return nil, nil
	}
	return r.defaultBody()
}

func (r *testRequest) Boot(ctx context.Context, pr *PendingRequest) error {
	if r.boot == nil {
		return nil
	}
	return r.boot(ctx, pr)
}

// plainRequest implements no optional capability.
type plainRequest struct {
	Definition
	endpoint string
}

func (r *plainRequest) Method() string          { return http.MethodGet }
func (r *plainRequest) ResolveEndpoint() string { return r.endpoint }

type userDTO struct {
	Name string `json:"name"`
}

type dtoRequest struct {
	plainRequest
}

func (r *dtoRequest) CreateDTOFromResponse(resp *Response) (any, error) {
	var u userDTO
	if err := resp.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// interceptorFunc adapts a function to Interceptor.
type interceptorFunc func(ctx context.Context, pr *PendingRequest, next Dispatcher) (*Response, error)

func (f interceptorFunc) Intercept(ctx context.Context, pr *PendingRequest, next Dispatcher) (*Response, error) {
	return f(ctx, pr, next)
}

type staticGlobal struct {
	current Interceptor
}

func (g *staticGlobal) Current() Interceptor { return g.current }

func respondWith(status int, data string) Interceptor {
	return interceptorFunc(func(ctx context.Context, pr *PendingRequest, next Dispatcher) (*Response, error) {
		return NewResponse(pr, status, nil, []byte(data)), nil
	})
}
