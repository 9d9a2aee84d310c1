package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/courier/internal/auth"
	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/httpclient"
)

// DefaultScopeSeparator joins scopes in the token request.
const DefaultScopeSeparator = " "

// TokenRequest posts the client credentials grant to the token endpoint.
type TokenRequest struct {
	httpclient.Definition

	endpoint  string
	scope     string
	clientID  string
	secret    string
	basicAuth bool
}

// NewTokenRequest builds the grant request for cfg. With basicAuth the
// client credentials travel in the Authorization header instead of the body.
func NewTokenRequest(cfg *Config, scopes []string, separator string, basicAuth bool) *TokenRequest {
	r := &TokenRequest{
		endpoint:  cfg.tokenEndpoint(),
		scope:     strings.Join(scopes, separator),
		clientID:  cfg.ClientID,
		secret:    cfg.ClientSecret,
		basicAuth: basicAuth,
	}
	if basicAuth {
		r.WithAuth(auth.NewBasic(cfg.ClientID, cfg.ClientSecret))
	} else {
		// The token call never inherits the connector's authenticator.
		r.WithAuth(auth.Null{})
	}
	return r
}

func (r *TokenRequest) Method() string          { return http.MethodPost }
func (r *TokenRequest) ResolveEndpoint() string { return r.endpoint }

func (r *TokenRequest) DefaultHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

func (r *TokenRequest) DefaultBody() (body.Repository, error) {
	f, err := body.NewForm(nil)
	if err != nil {
		return nil, err
	}
	f.Add("grant_type", "client_credentials")
	if !r.basicAuth {
		f.Add("client_id", r.clientID)
		f.Add("client_secret", r.secret)
	}
	f.Add("scope", r.scope)
	return f, nil
}

// ClientCredentials requests access tokens for a connector.
type ClientCredentials struct {
	Connector httpclient.Connector
	Config    *Config
	// BasicAuth sends the client credentials as HTTP basic auth.
	BasicAuth bool
	// TokenRequest replaces the default grant request.
	TokenRequest func(cfg *Config, scopes []string, separator string) httpclient.Request

	now func() time.Time
}

// NewClientCredentials returns a grant bound to c.
func NewClientCredentials(c httpclient.Connector, cfg *Config) *ClientCredentials {
	return &ClientCredentials{Connector: c, Config: cfg}
}

type tokenOptions struct {
	separator string
	modifier  func(httpclient.Request)
	send      []httpclient.SendOption
}

// Option configures one token request.
type Option func(*tokenOptions)

// WithScopeSeparator joins scopes with sep instead of a space.
func WithScopeSeparator(sep string) Option {
	return func(o *tokenOptions) { o.separator = sep }
}

// WithRequestModifier runs fn on the token request after the config's
// modifier.
func WithRequestModifier(fn func(httpclient.Request)) Option {
	return func(o *tokenOptions) { o.modifier = fn }
}

// WithSendOptions passes options through to httpclient.Send.
func WithSendOptions(opts ...httpclient.SendOption) Option {
	return func(o *tokenOptions) { o.send = append(o.send, opts...) }
}

// AccessTokenResponse sends the token request and returns the raw response,
// failed statuses included.
func (g *ClientCredentials) AccessTokenResponse(ctx context.Context, scopes []string, opts ...Option) (*httpclient.Response, error) {
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	if g.Connector == nil {
		return nil, errors.New("oauth: connector is required")
	}

	o := tokenOptions{separator: DefaultScopeSeparator}
	for _, opt := range opts {
		opt(&o)
	}

	all := append(append([]string(nil), g.Config.DefaultScopes...), scopes...)
	var req httpclient.Request
	if g.TokenRequest != nil {
		req = g.TokenRequest(g.Config, all, o.separator)
	} else {
		req = NewTokenRequest(g.Config, all, o.separator, g.BasicAuth)
	}
	if g.Config.RequestModifier != nil {
		g.Config.RequestModifier(req)
	}
	if o.modifier != nil {
		o.modifier(req)
	}
	return httpclient.Send(ctx, g.Connector, req, o.send...)
}

// GetAccessToken sends the token request and returns the issued token as an
// authenticator. Failed statuses are returned as *httpclient.StatusError.
func (g *ClientCredentials) GetAccessToken(ctx context.Context, scopes []string, opts ...Option) (*auth.AccessToken, error) {
	resp, err := g.AccessTokenResponse(ctx, scopes, opts...)
	if err != nil {
		return nil, err
	}
	if err := resp.Throw(); err != nil {
		return nil, err
	}
	return g.accessTokenFromResponse(resp)
}

func (g *ClientCredentials) accessTokenFromResponse(resp *httpclient.Response) (*auth.AccessToken, error) {
	doc := resp.JSON()
	if e := doc.Get("error"); e.Exists() {
		return nil, fmt.Errorf("oauth2 error: %s - %s", e.String(), doc.Get("error_description").String())
	}
	token := doc.Get("access_token").String()
	if token == "" {
		return nil, errors.New("oauth2: no access token in response")
	}

	var expiresAt *time.Time
	if exp := doc.Get("expires_in"); exp.Exists() {
		at := g.clock().Add(time.Duration(exp.Int()) * time.Second)
		expiresAt = &at
	}
	return auth.NewAccessToken(token, doc.Get("refresh_token").String(), expiresAt), nil
}

func (g *ClientCredentials) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}
