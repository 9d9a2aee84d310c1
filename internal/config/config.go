package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config describes one connector, the named requests that can be sent through
// it and the ambient settings of the CLI.
type Config struct {
	ConfigFile string
	Connector  ConnectorConfig `mapstructure:"connector"`
	Requests   []RequestConfig `mapstructure:"requests"`
	Fixtures   FixtureConfig   `mapstructure:"fixtures"`
	Tracing    TracingConfig   `mapstructure:"tracing"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// ConnectorConfig holds the defaults every configured request inherits.
type ConnectorConfig struct {
	BaseURL   string            `mapstructure:"base_url"`
	Headers   map[string]string `mapstructure:"headers"`
	Query     map[string]string `mapstructure:"query"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Auth      AuthConfig        `mapstructure:"auth"`
	RateLimit int               `mapstructure:"rate_limit"` // requests per second, 0 means unlimited
	Retries   int               `mapstructure:"retries"`
}

type AuthType string

const (
	AuthTypeNone                    AuthType = ""
	AuthTypeToken                   AuthType = "token"
	AuthTypeBasic                   AuthType = "basic"
	AuthTypeDigest                  AuthType = "digest"
	AuthTypeOAuth2ClientCredentials AuthType = "oauth2_client_credentials"
)

type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	Token               string        `mapstructure:"token"`
	Prefix              string        `mapstructure:"prefix"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	TokenURL            string        `mapstructure:"token_url"`
	Scopes              []string      `mapstructure:"scopes"`
	ScopeSeparator      string        `mapstructure:"scope_separator"`
	BasicAuth           bool          `mapstructure:"basic_auth"` // send client credentials as Basic auth
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

type BodyType string

const (
	BodyTypeNone      BodyType = ""
	BodyTypeJSON      BodyType = "json"
	BodyTypeForm      BodyType = "form"
	BodyTypeString    BodyType = "string"
	BodyTypeXML       BodyType = "xml"
	BodyTypeMultipart BodyType = "multipart"
)

// RequestConfig is a named request. Endpoint is joined onto the connector's
// base URL unless it is absolute.
type RequestConfig struct {
	Name     string            `mapstructure:"name"`
	Method   string            `mapstructure:"method"`
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
	Query    map[string]string `mapstructure:"query"`
	BodyType BodyType          `mapstructure:"body_type"`
	Body     any               `mapstructure:"body"`
}

type FixtureConfig struct {
	Dir string `mapstructure:"dir"`
	// Record saves live responses for fixtures that do not exist yet.
	Record bool `mapstructure:"record"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	// Propagate overrides whether traceparent headers are sent. Nil follows
	// Enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured here or in the
// environment.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into sends.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type LoggingConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Format string `mapstructure:"format"` // console or json
	File   string `mapstructure:"file"`
}

const (
	DefaultTimeout    = 30 * time.Second
	DefaultFixtureDir = "tests/fixtures"
)

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Connector: ConnectorConfig{
			Headers: map[string]string{},
			Query:   map[string]string{},
			Timeout: DefaultTimeout,
		},
		Fixtures: FixtureConfig{Dir: DefaultFixtureDir},
		Tracing:  TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Logging:  LoggingConfig{Format: "console"},
	}
}

// Request returns the request called name.
func (c Config) Request(name string) (RequestConfig, bool) {
	for _, r := range c.Requests {
		if r.Name == name {
			return r, true
		}
	}
	return RequestConfig{}, false
}

// RequestNames lists configured request names in file order.
func (c Config) RequestNames() []string {
	names := make([]string, 0, len(c.Requests))
	for _, r := range c.Requests {
		names = append(names, r.Name)
	}
	return names
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateConnector(c.Connector)...)
	issues = append(issues, validateAuthConfig(c.Connector.Auth)...)
	issues = append(issues, validateRequests(c.Requests)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("logging: format must be 'console' or 'json', got %q", c.Logging.Format))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateConnector(conn ConnectorConfig) []string {
	var issues []string
	base := strings.TrimSpace(conn.BaseURL)
	if base == "" {
		issues = append(issues, "connector: base_url is required (use --help for usage information)")
	} else if u, err := url.Parse(base); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("connector: base_url must be an absolute http(s) URL, got %q", base))
	}
	if conn.Timeout < 0 {
		issues = append(issues, "connector: timeout must be >= 0")
	}
	if conn.RateLimit < 0 {
		issues = append(issues, "connector: rate_limit must be >= 0")
	}
	if conn.Retries < 0 {
		issues = append(issues, "connector: retries must be >= 0")
	}
	return issues
}

func validateAuthConfig(auth AuthConfig) []string {
	var issues []string
	switch auth.Type {
	case AuthTypeNone:
	case AuthTypeToken:
		if strings.TrimSpace(auth.Token) == "" {
			issues = append(issues, "auth: token is required for token auth")
		}
	case AuthTypeBasic, AuthTypeDigest:
		if strings.TrimSpace(auth.Username) == "" {
			issues = append(issues, fmt.Sprintf("auth: username is required for %s auth", auth.Type))
		}
	case AuthTypeOAuth2ClientCredentials:
		if auth.ClientID == "" {
			issues = append(issues, "auth: client_id is required for oauth2_client_credentials")
		}
		if auth.ClientSecret == "" {
			issues = append(issues, "auth: client_secret is required for oauth2_client_credentials")
		}
		if auth.RefreshBeforeExpiry < 0 {
			issues = append(issues, "auth: refresh_before_expiry must be >= 0")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: unsupported type %q", auth.Type))
	}
	return issues
}

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodOptions: true,
	http.MethodConnect: true, http.MethodTrace: true,
}

func validateRequests(requests []RequestConfig) []string {
	var issues []string
	seen := make(map[string]int, len(requests))
	for idx, r := range requests {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			issues = append(issues, fmt.Sprintf("requests[%d]: name is required", idx))
		} else if prev, dup := seen[name]; dup {
			issues = append(issues, fmt.Sprintf("requests[%d]: name %q already used by requests[%d]", idx, name, prev))
		} else {
			seen[name] = idx
		}
		if r.Method != "" && !validMethods[r.Method] {
			issues = append(issues, fmt.Sprintf("requests[%d]: unsupported method %q", idx, r.Method))
		}
		switch r.BodyType {
		case BodyTypeNone, BodyTypeJSON, BodyTypeForm, BodyTypeString, BodyTypeXML, BodyTypeMultipart:
		default:
			issues = append(issues, fmt.Sprintf("requests[%d]: unsupported body_type %q", idx, r.BodyType))
		}
		if r.BodyType == BodyTypeForm || r.BodyType == BodyTypeMultipart {
			if r.Body != nil {
				if _, ok := r.Body.(map[string]any); !ok {
					issues = append(issues, fmt.Sprintf("requests[%d]: %s body must be a map", idx, r.BodyType))
				}
			}
		}
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
