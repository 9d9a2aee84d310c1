package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/courier/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadWithoutArgsRequestsHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--base-url", "https://api.example.com"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Connector.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Connector.BaseURL)
	}
	if cfg.Connector.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Connector.Timeout)
	}
	if cfg.Connector.Retries != 0 || cfg.Connector.RateLimit != 0 {
		t.Errorf("Retries = %d, RateLimit = %d, want 0", cfg.Connector.Retries, cfg.Connector.RateLimit)
	}
	if cfg.Fixtures.Dir != config.DefaultFixtureDir || cfg.Fixtures.Record {
		t.Errorf("Fixtures = %+v", cfg.Fixtures)
	}
	if cfg.Tracing.Protocol != "grpc" || cfg.Tracing.SampleRate != 1 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if len(cfg.Connector.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.Connector.Headers))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := writeFile(t, "courier.yaml", strings.Join([]string{
		"connector:",
		"  base_url: https://api.example.com",
		"  headers:",
		"    accept: application/json",
		"  query:",
		"    apiVersion: '2024-01'",
		"  timeout: 15s",
		"  rate_limit: 5",
		"  retries: 2",
		"  auth:",
		"    type: token",
		"    token: abc",
		"requests:",
		"  - name: user",
		"    endpoint: /user",
		"  - name: create-user",
		"    method: post",
		"    endpoint: /users",
		"    query:",
		"      dryRun: 'true'",
		"    body:",
		"      firstName: Sam",
		"      tags: [a, b]",
		"fixtures:",
		"  dir: testdata/fixtures",
		"  record: true",
		"tracing:",
		"  endpoint: localhost:4317",
		"  protocol: HTTP",
		"  sample_rate: 0.5",
		"  propagate: false",
		"logging:",
		"  format: json",
	}, "\n"))

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	conn := cfg.Connector
	if conn.BaseURL != "https://api.example.com" || conn.Timeout != 15*time.Second || conn.RateLimit != 5 || conn.Retries != 2 {
		t.Errorf("Connector = %+v", conn)
	}
	if conn.Headers["Accept"] != "application/json" {
		t.Errorf("Headers[Accept] = %q", conn.Headers["Accept"])
	}
	if conn.Query["apiVersion"] != "2024-01" {
		t.Errorf("Query = %v, want apiVersion kept in case", conn.Query)
	}
	if conn.Auth.Type != config.AuthTypeToken || conn.Auth.Token != "abc" {
		t.Errorf("Auth = %+v", conn.Auth)
	}

	if got := cfg.RequestNames(); strings.Join(got, ",") != "user,create-user" {
		t.Fatalf("RequestNames() = %v", got)
	}
	user, _ := cfg.Request("user")
	if user.Method != "GET" || user.BodyType != config.BodyTypeNone {
		t.Errorf("user = %+v", user)
	}
	create, ok := cfg.Request("create-user")
	if !ok {
		t.Fatal("Request(create-user) not found")
	}
	if create.Method != "POST" || create.BodyType != config.BodyTypeJSON {
		t.Errorf("create-user = %+v", create)
	}
	body, ok := create.Body.(map[string]any)
	if !ok || body["firstName"] != "Sam" {
		t.Errorf("Body = %#v, want firstName kept in case", create.Body)
	}
	if create.Query["dryRun"] != "true" {
		t.Errorf("Query = %v", create.Query)
	}

	if cfg.Fixtures.Dir != "testdata/fixtures" || !cfg.Fixtures.Record {
		t.Errorf("Fixtures = %+v", cfg.Fixtures)
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.SampleRate != 0.5 || cfg.Tracing.ShouldPropagate() {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := writeFile(t, "courier.json", `{
		"connector": {
			"base_url": "https://api.example.com",
			"headers": {"Content-Type": "application/json"},
			"auth": {"type": "oauth2_client_credentials", "client_id": "id", "client_secret": "secret", "scopes": ["read", "write"]}
		},
		"requests": [
			{"name": "login", "method": "POST", "endpoint": "/login", "body_type": "form", "body": {"userName": "sam"}}
		]
	}`)

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--header", "Authorization=Bearer token", "--timeout", "45s"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Connector.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q", cfg.Connector.Headers["Content-Type"])
	}
	if cfg.Connector.Headers["Authorization"] != "Bearer token" {
		t.Errorf("Headers[Authorization] = %q", cfg.Connector.Headers["Authorization"])
	}
	if cfg.Connector.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s, want 45s", cfg.Connector.Timeout)
	}
	auth := cfg.Connector.Auth
	if auth.Type != config.AuthTypeOAuth2ClientCredentials || strings.Join(auth.Scopes, " ") != "read write" {
		t.Errorf("Auth = %+v", auth)
	}
	login, _ := cfg.Request("login")
	if body, _ := login.Body.(map[string]any); body["userName"] != "sam" {
		t.Errorf("Body = %#v", login.Body)
	}
}

func TestLoadBodyFile(t *testing.T) {
	payload := writeFile(t, "payload.xml", "<user><name>Sam</name></user>")
	path := writeFile(t, "courier.yaml", strings.Join([]string{
		"connector:",
		"  base_url: https://api.example.com",
		"requests:",
		"  - name: upload",
		"    method: PUT",
		"    endpoint: /users/1",
		"    body_type: xml",
		"    body_file: " + payload,
	}, "\n"))

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	upload, _ := cfg.Request("upload")
	if upload.BodyType != config.BodyTypeXML || upload.Body != "<user><name>Sam</name></user>" {
		t.Errorf("upload = %+v", upload)
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("COURIER_AUTH_CLIENT_SECRET", "from-env")
	path := writeFile(t, "courier.yaml", strings.Join([]string{
		"connector:",
		"  base_url: https://api.example.com",
		"  auth:",
		"    type: oauth2_client_credentials",
		"    client_id: id",
	}, "\n"))

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Connector.Auth.ClientSecret != "from-env" {
		t.Errorf("ClientSecret = %q, want from-env", cfg.Connector.Auth.ClientSecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestConfigValidationErrors(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Connector.BaseURL = "https://api.example.com"
		return *cfg
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "missing base url",
			mutate: func(c *config.Config) { c.Connector.BaseURL = "" },
			want:   []string{"base_url is required"},
		},
		{
			name:   "relative base url",
			mutate: func(c *config.Config) { c.Connector.BaseURL = "/api" },
			want:   []string{"absolute http(s) URL"},
		},
		{
			name: "negative values",
			mutate: func(c *config.Config) {
				c.Connector.Timeout = -1
				c.Connector.RateLimit = -1
				c.Connector.Retries = -1
			},
			want: []string{"timeout", "rate_limit", "retries"},
		},
		{
			name:   "token without token",
			mutate: func(c *config.Config) { c.Connector.Auth.Type = config.AuthTypeToken },
			want:   []string{"token is required"},
		},
		{
			name:   "digest without username",
			mutate: func(c *config.Config) { c.Connector.Auth.Type = config.AuthTypeDigest },
			want:   []string{"username is required for digest"},
		},
		{
			name:   "oauth without credentials",
			mutate: func(c *config.Config) { c.Connector.Auth.Type = config.AuthTypeOAuth2ClientCredentials },
			want:   []string{"client_id", "client_secret"},
		},
		{
			name:   "unknown auth",
			mutate: func(c *config.Config) { c.Connector.Auth.Type = "kerberos" },
			want:   []string{`unsupported type "kerberos"`},
		},
		{
			name: "requests",
			mutate: func(c *config.Config) {
				c.Requests = []config.RequestConfig{
					{Name: "a", Method: "GET"},
					{Name: "a", Method: "FETCH"},
					{Method: "GET", BodyType: "yaml"},
					{Name: "form", Method: "POST", BodyType: config.BodyTypeForm, Body: "x=1"},
				}
			},
			want: []string{
				`requests[1]: name "a" already used by requests[0]`,
				`unsupported method "FETCH"`,
				"requests[2]: name is required",
				`unsupported body_type "yaml"`,
				"form body must be a map",
			},
		},
		{
			name: "tracing",
			mutate: func(c *config.Config) {
				c.Tracing.Protocol = "thrift"
				c.Tracing.SampleRate = 2
			},
			want: []string{"protocol", "sample_rate"},
		},
		{
			name:   "logging",
			mutate: func(c *config.Config) { c.Logging.Format = "logfmt" },
			want:   []string{"format"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
			if len(verr.Issues()) < len(tc.want) {
				t.Errorf("Issues() = %v, want at least %d", verr.Issues(), len(tc.want))
			}
		})
	}
}

func TestTracingConfigPropagation(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	off := false

	tests := []struct {
		name string
		cfg  config.TracingConfig
		want bool
	}{
		{"disabled", config.TracingConfig{}, false},
		{"endpoint", config.TracingConfig{Endpoint: "localhost:4317"}, true},
		{"override", config.TracingConfig{Endpoint: "localhost:4317", Propagate: &off}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ShouldPropagate(); got != tt.want {
				t.Errorf("ShouldPropagate() = %v, want %v", got, tt.want)
			}
		})
	}
}
