package httpclient

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/torosent/courier/internal/auth"
	"github.com/torosent/courier/internal/bag"
	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/sender"
)

// Definition holds the runtime state shared by connectors and requests. User
// types embed it by value and are used through pointers:
//
//	type GetUser struct {
//		httpclient.Definition
//		ID int
//	}
//
//	func (r *GetUser) Method() string          { return http.MethodGet }
//	func (r *GetUser) ResolveEndpoint() string { return fmt.Sprintf("/users/%d", r.ID) }
type Definition struct {
	headers    *bag.Bag[string]
	query      *bag.Bag[string]
	config     *bag.Bag[any]
	middleware *Pipeline

	authenticator auth.Authenticator
	bodyMu        sync.Mutex
	body          body.Repository

	mockClient  Interceptor
	globalMocks GlobalMocks
	sender      sender.Sender
	logger      *zap.Logger
}

func (d *Definition) definition() *Definition { return d }

// Headers returns the runtime header bag. Values written here override the
// defaults declared with DefaultHeaders.
func (d *Definition) Headers() *bag.Bag[string] {
	if d.headers == nil {
		d.headers = bag.NewHeaders()
	}
	return d.headers
}

// Query returns the runtime query bag.
func (d *Definition) Query() *bag.Bag[string] {
	if d.query == nil {
		d.query = bag.New[string]()
	}
	return d.query
}

// Config returns the runtime config bag. Keys sender.ConfigTimeout and
// sender.ConfigDigest are read by the sender.
func (d *Definition) Config() *bag.Bag[any] {
	if d.config == nil {
		d.config = bag.New[any]()
	}
	return d.config
}

// Middleware returns the hook pipeline of this definition.
func (d *Definition) Middleware() *Pipeline {
	if d.middleware == nil {
		d.middleware = NewPipeline()
	}
	return d.middleware
}

// WithAuth sets the explicit authenticator. It takes precedence over DefaultAuth.
func (d *Definition) WithAuth(a auth.Authenticator) *Definition {
	d.authenticator = a
	return d
}

// Authenticate is an alias of WithAuth.
func (d *Definition) Authenticate(a auth.Authenticator) *Definition {
	return d.WithAuth(a)
}

// WithTokenAuth authenticates with "Authorization: <prefix> <token>". The
// prefix defaults to Bearer.
func (d *Definition) WithTokenAuth(token string, prefix ...string) *Definition {
	return d.WithAuth(auth.NewToken(token, prefix...))
}

// WithBasicAuth authenticates with "Authorization: Basic base64(username:password)".
func (d *Definition) WithBasicAuth(username, password string) *Definition {
	return d.WithAuth(auth.NewBasic(username, password))
}

// WithDigestAuth answers the server's digest challenge with these credentials.
func (d *Definition) WithDigestAuth(username, password string) *Definition {
	return d.WithAuth(auth.NewDigest(username, password))
}

// Authenticator returns the explicit authenticator, or nil.
func (d *Definition) Authenticator() auth.Authenticator {
	return d.authenticator
}

// WithBody sets the explicit body, replacing DefaultBody.
func (d *Definition) WithBody(b body.Repository) *Definition {
	d.bodyMu.Lock()
	d.body = b
	d.bodyMu.Unlock()
	return d
}

// WithMockClient routes sends through i instead of the sender.
func (d *Definition) WithMockClient(i Interceptor) *Definition {
	d.mockClient = i
	return d
}

// MockClient returns the interceptor set with WithMockClient.
func (d *Definition) MockClient() Interceptor {
	return d.mockClient
}

// WithGlobalMocks binds a process-wide mock registry. It is consulted only
// when no local mock client is set.
func (d *Definition) WithGlobalMocks(g GlobalMocks) *Definition {
	d.globalMocks = g
	return d
}

// WithSender replaces the network sender. Only connector definitions are consulted.
func (d *Definition) WithSender(s sender.Sender) *Definition {
	d.sender = s
	return d
}

// WithLogger sets the logger used by Send. Only connector definitions are consulted.
func (d *Definition) WithLogger(l *zap.Logger) *Definition {
	d.logger = l
	return d
}

// Connector is a base API: a base URL plus shared defaults.
type Connector interface {
	definition() *Definition
	ResolveBaseURL() string
}

// Request is one endpoint call layered on a connector.
type Request interface {
	definition() *Definition
	Method() string
	ResolveEndpoint() string
}

// Optional capabilities, detected on connectors and requests.
type (
	HeaderDefaulter interface {
		DefaultHeaders() map[string]string
	}
	QueryDefaulter interface {
		DefaultQuery() map[string]string
	}
	ConfigDefaulter interface {
		DefaultConfig() map[string]any
	}
	BodyDefaulter interface {
		DefaultBody() (body.Repository, error)
	}
	AuthDefaulter interface {
		DefaultAuth() auth.Authenticator
	}
	// Booter runs after defaults are merged and before runtime values.
	Booter interface {
		Boot(ctx context.Context, pr *PendingRequest) error
	}
	// DTOFactory turns a response into a user type. Requests are checked
	// before connectors.
	DTOFactory interface {
		CreateDTOFromResponse(r *Response) (any, error)
	}
)

// DefinitionOf returns the runtime definition embedded in r.
func DefinitionOf(r Request) *Definition {
	return r.definition()
}

// ResolveBody returns the request body: the explicit one, or the default
// body built on first use and kept on the definition. Pending requests send
// a clone of it, so changes made here apply to later sends only.
func ResolveBody(r Request) (body.Repository, error) {
	d := r.definition()
	d.bodyMu.Lock()
	defer d.bodyMu.Unlock()
	if d.body != nil {
		return d.body, nil
	}
	bd, ok := r.(BodyDefaulter)
	if !ok {
		return nil, nil
	}
	b, err := bd.DefaultBody()
	if err != nil {
		return nil, err
	}
	d.body = b
	return b, nil
}

// ResolveAuthenticator returns the authenticator that applies to r sent
// through c: the request's explicit or default one, then the connector's.
func ResolveAuthenticator(c Connector, r Request) auth.Authenticator {
	if a := r.definition().authenticator; a != nil {
		return a
	}
	if ad, ok := r.(AuthDefaulter); ok {
		if a := ad.DefaultAuth(); a != nil {
			return a
		}
	}
	if a := c.definition().authenticator; a != nil {
		return a
	}
	if ad, ok := c.(AuthDefaulter); ok {
		return ad.DefaultAuth()
	}
	return nil
}
