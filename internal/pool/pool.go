// Package pool sends batches of requests through one connector with bounded
// concurrency.
package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/courier/internal/httpclient"
)

// DefaultConcurrency is used when New is given a non-positive limit.
const DefaultConcurrency = 10

// Result is the outcome of one request of a batch.
type Result struct {
	Index    int
	Request  httpclient.Request
	Response *httpclient.Response
	Err      error
	Duration time.Duration
}

// Pool sends requests through a connector, at most Concurrency at a time.
type Pool struct {
	connector   httpclient.Connector
	concurrency int
	opts        []httpclient.SendOption
	logger      *zap.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithSendOptions applies opts to every send of the pool.
func WithSendOptions(opts ...httpclient.SendOption) Option {
	return func(p *Pool) { p.opts = append(p.opts, opts...) }
}

// WithLogger logs failed sends.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New returns a pool for c.
func New(c httpclient.Connector, concurrency int, opts ...Option) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	p := &Pool{connector: c, concurrency: concurrency, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Concurrency returns the maximum number of sends in flight.
func (p *Pool) Concurrency() int { return p.concurrency }

// Send sends every request and returns one result per request, in input
// order. A failed request does not stop the others; a cancelled ctx fails
// the requests not yet started.
func (p *Pool) Send(ctx context.Context, requests []httpclient.Request) []Result {
	results := make([]Result, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, req := range requests {
		i, req := i, req
		results[i] = Result{Index: i, Request: req}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			start := time.Now()
			resp, err := httpclient.Send(ctx, p.connector, req, p.opts...)
			results[i].Response, results[i].Err = resp, err
			results[i].Duration = time.Since(start)
			if err != nil {
				p.logger.Debug("pooled request failed", zap.Int("index", i), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Errors returns the failed results.
func Errors(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
