package httpclient

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/torosent/courier/internal/sender"
)

// Dispatcher sends a pending request and returns its response.
type Dispatcher func(ctx context.Context, pr *PendingRequest) (*Response, error)

// Interceptor sits between the request hooks and the sender. It may answer
// with its own response or call next to continue to the network.
type Interceptor interface {
	Intercept(ctx context.Context, pr *PendingRequest, next Dispatcher) (*Response, error)
}

// GlobalMocks is a process-wide interceptor registry. Current returns a nil
// interface when nothing is registered.
type GlobalMocks interface {
	Current() Interceptor
}

type sendOptions struct {
	mockClient Interceptor
}

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

// WithMockClient intercepts this call with i, ahead of any interceptor set
// on the connector or request.
func WithMockClient(i Interceptor) SendOption {
	return func(o *sendOptions) {
		o.mockClient = i
	}
}

var (
	defaultSenderOnce sync.Once
	defaultSender     sender.Sender
)

// DefaultSender is used by connectors without WithSender.
func DefaultSender() sender.Sender {
	defaultSenderOnce.Do(func() {
		defaultSender = sender.NewNetSender(0)
	})
	return defaultSender
}

// Send builds the pending request for r on c, runs the request hooks,
// dispatches through the first available interceptor (call option, connector,
// request, global registry) or the sender, then runs the response hooks.
func Send(ctx context.Context, c Connector, r Request, opts ...SendOption) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	pr, err := CreatePendingRequest(ctx, c, r)
	if err != nil {
		return nil, err
	}

	cd := c.definition()
	logger := cd.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("pending request built",
		zap.String("id", pr.ID()),
		zap.String("method", pr.Method()),
		zap.String("url", pr.FullURL()),
	)

	resp, err := pr.middleware.runRequest(ctx, pr)
	if err != nil {
		pr.middleware.runError(ctx, pr, err)
		return nil, err
	}

	if resp == nil {
		s := cd.sender
		if s == nil {
			s = DefaultSender()
		}
		dispatch := func(ctx context.Context, pr *PendingRequest) (*Response, error) {
			return dispatchHTTP(ctx, s, pr, logger)
		}

		if interceptor := resolveInterceptor(o, cd, r.definition()); interceptor != nil {
			resp, err = interceptor.Intercept(ctx, pr, dispatch)
		} else {
			resp, err = dispatch(ctx, pr)
		}
		if err == nil && resp == nil {
			err = errors.New("interceptor returned no response")
		}
		if err != nil {
			pr.middleware.runError(ctx, pr, err)
			return nil, err
		}
		if resp.pending == nil {
			resp.pending = pr
		}
		if resp.mocked {
			logger.Debug("mocked response served", zap.String("id", pr.ID()), zap.Int("status", resp.status))
		}
	}

	out, err := pr.middleware.runResponse(ctx, resp)
	if err != nil {
		pr.middleware.runError(ctx, pr, err)
		return nil, err
	}
	return out, nil
}

func resolveInterceptor(o sendOptions, cd, rd *Definition) Interceptor {
	switch {
	case o.mockClient != nil:
		return o.mockClient
	case cd.mockClient != nil:
		return cd.mockClient
	case rd.mockClient != nil:
		return rd.mockClient
	}
	for _, g := range []GlobalMocks{cd.globalMocks, rd.globalMocks} {
		if g != nil {
			if i := g.Current(); i != nil {
				return i
			}
		}
	}
	return nil
}

func dispatchHTTP(ctx context.Context, s sender.Sender, pr *PendingRequest, logger *zap.Logger) (*Response, error) {
	req, err := pr.ToHTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.Send(ctx, req, pr.SenderOptions())
	if err != nil {
		logger.Debug("transport failure", zap.String("id", pr.ID()), zap.Error(err))
		return nil, sender.Wrap(req, err)
	}
	resp, err := newHTTPResponse(pr, req, raw)
	if err != nil {
		return nil, sender.Wrap(req, err)
	}
	return resp, nil
}
