// Package oauth implements the OAuth2 client credentials grant on top of
// httpclient connectors.
package oauth

import (
	"errors"

	"github.com/torosent/courier/internal/httpclient"
)

// DefaultTokenEndpoint is resolved against the connector's base URL.
const DefaultTokenEndpoint = "token"

// Config holds the client registration used to request tokens.
type Config struct {
	ClientID     string
	ClientSecret string
	// TokenEndpoint is relative to the connector base URL, or absolute.
	TokenEndpoint string
	// DefaultScopes are sent before the scopes passed to GetAccessToken.
	DefaultScopes []string
	// RequestModifier runs on every token request before it is sent.
	RequestModifier func(httpclient.Request)
}

// NewConfig returns a config using DefaultTokenEndpoint.
func NewConfig() *Config {
	return &Config{TokenEndpoint: DefaultTokenEndpoint}
}

func (c *Config) SetClientID(id string) *Config {
	c.ClientID = id
	return c
}

func (c *Config) SetClientSecret(secret string) *Config {
	c.ClientSecret = secret
	return c
}

func (c *Config) SetTokenEndpoint(endpoint string) *Config {
	c.TokenEndpoint = endpoint
	return c
}

func (c *Config) SetDefaultScopes(scopes ...string) *Config {
	c.DefaultScopes = append([]string(nil), scopes...)
	return c
}

func (c *Config) SetRequestModifier(fn func(httpclient.Request)) *Config {
	c.RequestModifier = fn
	return c
}

// ErrInvalidConfig is matched by every *ConfigValidationError.
var ErrInvalidConfig = errors.New("invalid oauth config")

// ConfigValidationError names the first missing field of a Config.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e *ConfigValidationError) Error() string { return e.Message }

func (e *ConfigValidationError) Is(target error) bool { return target == ErrInvalidConfig }

// Validate checks the fields the client credentials grant needs.
func (c *Config) Validate() error {
	if c == nil || c.ClientID == "" {
		return &ConfigValidationError{Field: "client_id", Message: "The Client ID is empty or has not been provided."}
	}
	if c.ClientSecret == "" {
		return &ConfigValidationError{Field: "client_secret", Message: "The Client Secret is empty or has not been provided."}
	}
	return nil
}

func (c *Config) tokenEndpoint() string {
	if c.TokenEndpoint == "" {
		return DefaultTokenEndpoint
	}
	return c.TokenEndpoint
}
