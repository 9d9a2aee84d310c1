package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the configuration file they name.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	if len(args) == 0 {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	return l.LoadFlags(flagSet)
}

// LoadFlags builds a Config from an already parsed flag set carrying the
// flags of RegisterFlags. File values are applied first, then changed flags.
func (Loader) LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	configPath, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)

	cfg := Default()
	cfg.ConfigFile = configPath

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		if err := restoreCase(cfg, configPath); err != nil {
			return nil, err
		}
	}
	applyEnvFallbacks(&cfg.Connector.Auth)

	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	normalize(cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Connector.BaseURL = strings.TrimSpace(cfg.Connector.BaseURL)
	cfg.Connector.Auth.Type = AuthType(strings.ToLower(strings.TrimSpace(string(cfg.Connector.Auth.Type))))
	if cfg.Connector.Headers == nil {
		cfg.Connector.Headers = map[string]string{}
	}
	if cfg.Connector.Query == nil {
		cfg.Connector.Query = map[string]string{}
	}
	for i := range cfg.Requests {
		r := &cfg.Requests[i]
		r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
		if r.Method == "" {
			r.Method = http.MethodGet
		}
		r.BodyType = BodyType(strings.ToLower(strings.TrimSpace(string(r.BodyType))))
		if r.Body != nil && r.BodyType == BodyTypeNone {
			r.BodyType = BodyTypeJSON
		}
	}
}

// applyEnvFallbacks keeps secrets out of config files.
func applyEnvFallbacks(auth *AuthConfig) {
	if auth.Token == "" {
		auth.Token = os.Getenv("COURIER_AUTH_TOKEN")
	}
	if auth.Password == "" {
		auth.Password = os.Getenv("COURIER_AUTH_PASSWORD")
	}
	if auth.ClientSecret == "" {
		auth.ClientSecret = os.Getenv("COURIER_AUTH_CLIENT_SECRET")
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "connector"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("connector: %w", err)
		}
		if err := buildConnectorConfig(&cfg.Connector, entry); err != nil {
			return fmt.Errorf("connector: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "requests"); ok {
		requests, err := parseRequests(raw)
		if err != nil {
			return fmt.Errorf("requests: %w", err)
		}
		cfg.Requests = requests
	}

	if raw, ok := lookupSetting(settings, "fixtures"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
		if err := buildFixtureConfig(&cfg.Fixtures, entry); err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		if err := buildTracingConfig(&cfg.Tracing, entry); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "logging"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		if err := buildLoggingConfig(&cfg.Logging, entry); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}

	return nil
}

func buildConnectorConfig(conn *ConnectorConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		conn.BaseURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := parseHeaders(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			conn.Headers[k] = v
		}
	}
	if raw, ok := lookupSetting(settings, "query"); ok {
		query, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for k, v := range query {
			conn.Query[k] = v
		}
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		conn.Timeout = dur
	}
	if raw, ok := lookupSetting(settings, "ratelimit", "rate_limit", "rate-limit"); ok {
		val, err := cast.ToIntE(raw)
		if err != nil {
			return fmt.Errorf("rate_limit: %w", err)
		}
		conn.RateLimit = val
	}
	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := cast.ToIntE(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		conn.Retries = val
	}
	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		conn.Auth = auth
	}
	return nil
}

func parseHeaders(raw interface{}) (map[string]string, error) {
	hdrs, err := asStringMap(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(hdrs))
	for key, value := range hdrs {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			return nil, fmt.Errorf("key cannot be empty")
		}
		out[http.CanonicalHeaderKey(trimmed)] = value
	}
	return out, nil
}

func parseRequests(value interface{}) ([]RequestConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	requests := make([]RequestConfig, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		request, err := buildRequest(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func buildRequest(settings map[string]interface{}) (RequestConfig, error) {
	var request RequestConfig
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("name: %w", err)
		}
		request.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("method: %w", err)
		}
		request.Method = val
	}
	if raw, ok := lookupSetting(settings, "endpoint", "path", "url"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		request.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := parseHeaders(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("headers: %w", err)
		}
		request.Headers = hdrs
	}
	if raw, ok := lookupSetting(settings, "query"); ok {
		query, err := asStringMap(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("query: %w", err)
		}
		request.Query = query
	}
	if raw, ok := lookupSetting(settings, "bodytype", "body_type", "body-type"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("body_type: %w", err)
		}
		request.BodyType = BodyType(val)
	}
	if raw, ok := lookupSetting(settings, "body"); ok {
		request.Body = normalizeValue(raw)
	}
	if raw, ok := lookupSetting(settings, "bodyfile", "body_file", "body-file"); ok {
		path, err := cast.ToStringE(raw)
		if err != nil {
			return RequestConfig{}, fmt.Errorf("body_file: %w", err)
		}
		if request.Body != nil {
			return RequestConfig{}, fmt.Errorf("body and body_file are mutually exclusive")
		}
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return RequestConfig{}, fmt.Errorf("body_file: %w", err)
		}
		request.Body = string(data)
		if request.BodyType == BodyTypeNone {
			request.BodyType = BodyTypeString
		}
	}
	return request, nil
}

func parseAuth(value interface{}) (AuthConfig, error) {
	if value == nil {
		return AuthConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return AuthConfig{}, err
	}
	return buildAuthConfig(entry)
}

func buildAuthConfig(settings map[string]interface{}) (AuthConfig, error) {
	var auth AuthConfig
	fields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"token"}, &auth.Token},
		{[]string{"prefix"}, &auth.Prefix},
		{[]string{"username"}, &auth.Username},
		{[]string{"password"}, &auth.Password},
		{[]string{"clientid", "client_id", "client-id"}, &auth.ClientID},
		{[]string{"clientsecret", "client_secret", "client-secret"}, &auth.ClientSecret},
		{[]string{"tokenurl", "token_url", "token-url"}, &auth.TokenURL},
		{[]string{"scopeseparator", "scope_separator", "scope-separator"}, &auth.ScopeSeparator},
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("type: %w", err)
		}
		auth.Type = AuthType(val)
	}
	for _, field := range fields {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		val, err := cast.ToStringE(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("%s: %w", field.keys[len(field.keys)-1], err)
		}
		// separators are often a single space
		if field.dst != &auth.ScopeSeparator {
			val = strings.TrimSpace(val)
		}
		*field.dst = val
	}
	if raw, ok := lookupSetting(settings, "scopes"); ok {
		scopes, err := cast.ToStringSliceE(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("scopes: %w", err)
		}
		auth.Scopes = scopes
	}
	if raw, ok := lookupSetting(settings, "basicauth", "basic_auth", "basic-auth"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("basic_auth: %w", err)
		}
		auth.BasicAuth = val
	}
	if raw, ok := lookupSetting(settings, "refreshbeforeexpiry", "refresh_before_expiry", "refresh-before-expiry"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("refresh_before_expiry: %w", err)
		}
		auth.RefreshBeforeExpiry = dur
	}
	return auth, nil
}

func buildFixtureConfig(fixtures *FixtureConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "dir", "directory"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("dir: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			fixtures.Dir = val
		}
	}
	if raw, ok := lookupSetting(settings, "record"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		fixtures.Record = val
	}
	return nil
}

func buildTracingConfig(tracing *TracingConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := cast.ToFloat64E(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return nil
}

func buildLoggingConfig(logging *LoggingConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "debug"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("debug: %w", err)
		}
		logging.Debug = val
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		logging.Format = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "file"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("file: %w", err)
		}
		logging.File = strings.TrimSpace(val)
	}
	return nil
}

// rawFile mirrors the case-sensitive parts of a config file. Viper lowercases
// every key it reads, which would rewrite JSON bodies and query names.
type rawFile struct {
	Connector struct {
		Query map[string]any `json:"query" yaml:"query"`
	} `json:"connector" yaml:"connector"`
	Requests []struct {
		Query map[string]any `json:"query" yaml:"query"`
		Body  any            `json:"body" yaml:"body"`
	} `json:"requests" yaml:"requests"`
}

// restoreCase re-reads YAML and JSON config files to recover the original
// key case of query parameters and request bodies. Other formats keep what
// viper produced.
func restoreCase(cfg *Config, path string) error {
	var unmarshal func([]byte, any) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw rawFile
	if err := unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if len(raw.Connector.Query) > 0 {
		query, err := asStringMap(raw.Connector.Query)
		if err != nil {
			return fmt.Errorf("connector: query: %w", err)
		}
		cfg.Connector.Query = query
	}
	for i := range raw.Requests {
		if i >= len(cfg.Requests) {
			break
		}
		if raw.Requests[i].Query != nil {
			query, err := asStringMap(raw.Requests[i].Query)
			if err != nil {
				return fmt.Errorf("requests: index %d: query: %w", i, err)
			}
			cfg.Requests[i].Query = query
		}
		if raw.Requests[i].Body != nil {
			cfg.Requests[i].Body = normalizeValue(raw.Requests[i].Body)
		}
	}
	return nil
}
