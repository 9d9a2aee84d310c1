package sender

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy configures retry behavior. Retries are never applied unless a
// sender is wrapped with WithRetry.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(resp *http.Response, err error) bool  // predicate; if nil, only errors are retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

type retrySender struct {
	inner  Sender
	policy RetryPolicy
}

// WithRetry wraps a Sender with retry capability.
func WithRetry(s Sender, policy RetryPolicy) Sender {
	if policy.MaxAttempts <= 1 {
		return s // no retries needed
	}
	return &retrySender{inner: s, policy: policy}
}

func (r *retrySender) shouldRetry(resp *http.Response, err error) bool {
	if r.policy.ShouldRetry != nil {
		return r.policy.ShouldRetry(resp, err)
	}
	return err != nil
}

func (r *retrySender) Send(ctx context.Context, req *http.Request, opts Options) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, Wrap(req, err)
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, Wrap(req, ctx.Err())
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return nil, Wrap(req, err)
		}
		resp, lastErr = r.inner.Send(ctx, attemptReq, opts)
		if !r.shouldRetry(resp, lastErr) {
			return resp, lastErr
		}

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			var delay time.Duration
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt, lastErr)
			} else {
				delay = r.policy.Delay
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, Wrap(req, ctx.Err())
				}
			}
		}
	}
	return resp, lastErr
}

type loggingSender struct {
	inner  Sender
	logger *zap.Logger
}

// WithLogging wraps a Sender to log every exchange at debug level and
// transport failures at warn level.
func WithLogging(s Sender, logger *zap.Logger) Sender {
	if logger == nil {
		return s
	}
	return &loggingSender{inner: s, logger: logger}
}

func (l *loggingSender) Send(ctx context.Context, req *http.Request, opts Options) (*http.Response, error) {
	start := time.Now()
	resp, err := l.inner.Send(ctx, req, opts)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		l.logger.Warn("transport failure", append(fields, zap.Error(err))...)
		return resp, err
	}
	l.logger.Debug("response received", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
