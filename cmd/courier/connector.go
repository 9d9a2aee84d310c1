package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/torosent/courier/internal/body"
	"github.com/torosent/courier/internal/config"
	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/metrics"
	"github.com/torosent/courier/internal/ratelimit"
	"github.com/torosent/courier/internal/sender"
	"github.com/torosent/courier/internal/tracing"
)

// configuredConnector is a connector described by a config file.
type configuredConnector struct {
	httpclient.Definition
	cfg config.ConnectorConfig
}

func (c *configuredConnector) ResolveBaseURL() string { return c.cfg.BaseURL }

func (c *configuredConnector) DefaultHeaders() map[string]string { return c.cfg.Headers }

func (c *configuredConnector) DefaultQuery() map[string]string { return c.cfg.Query }

// configuredRequest is one named request of a config file.
type configuredRequest struct {
	httpclient.Definition
	cfg config.RequestConfig
}

func (r *configuredRequest) Method() string { return r.cfg.Method }

func (r *configuredRequest) ResolveEndpoint() string { return r.cfg.Endpoint }

func (r *configuredRequest) DefaultHeaders() map[string]string { return r.cfg.Headers }

func (r *configuredRequest) DefaultQuery() map[string]string { return r.cfg.Query }

func (r *configuredRequest) DefaultBody() (body.Repository, error) {
	return buildBody(r.cfg.BodyType, r.cfg.Body)
}

// newConnector builds the connector for cfg. Middleware runs in this order:
// tracing, metrics, then rate limiting, so spans and latencies include the
// time spent waiting for a token.
func newConnector(cfg *config.Config, logger *zap.Logger, provider *tracing.Provider, collector *metrics.Collector) (*configuredConnector, error) {
	conn := &configuredConnector{cfg: cfg.Connector}

	var s sender.Sender = sender.NewNetSender(cfg.Connector.Timeout)
	if cfg.Connector.Retries > 0 {
		s = sender.WithRetry(s, newRetryPolicy(cfg.Connector.Retries))
	}
	conn.WithSender(sender.WithLogging(s, logger)).WithLogger(logger)

	authenticator, err := buildAuthenticator(cfg.Connector.Auth, conn)
	if err != nil {
		return nil, err
	}
	if authenticator != nil {
		conn.WithAuth(authenticator)
	}

	pipeline := conn.Middleware()
	pipeline.Use(tracing.Middleware(provider))
	if collector != nil {
		pipeline.Use(metrics.Middleware(collector))
	}
	if cfg.Connector.RateLimit > 0 {
		pipeline.Use(ratelimit.PerSecond(cfg.Connector.RateLimit))
	}
	return conn, nil
}

func newRequest(cfg config.RequestConfig) *configuredRequest {
	return &configuredRequest{cfg: cfg}
}

// buildBody turns a configured body into a repository. Form and multipart
// bodies are maps; multipart parts are written in key order.
func buildBody(kind config.BodyType, value any) (body.Repository, error) {
	if value == nil {
		return nil, nil
	}
	switch kind {
	case config.BodyTypeJSON, config.BodyTypeNone:
		if s, ok := value.(string); ok {
			return body.NewJSON(json.RawMessage(s))
		}
		return body.NewJSON(value)
	case config.BodyTypeForm:
		return body.NewForm(value)
	case config.BodyTypeString:
		return body.NewRaw(fmt.Sprint(value))
	case config.BodyTypeXML:
		return body.NewXML(fmt.Sprint(value))
	case config.BodyTypeMultipart:
		fields, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("multipart body must be a map, got %T", value)
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		m, err := body.NewMultipart()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := m.Add(name, fmt.Sprint(fields[name]), "", nil); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported body type %q", strings.TrimSpace(string(kind)))
	}
}
