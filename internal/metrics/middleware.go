package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/torosent/courier/internal/httpclient"
)

// Middleware returns hooks that time every send through the pipeline they
// are merged into and record the outcome in c. Timing starts at the hook's
// position among the request hooks.
func Middleware(c *Collector) *httpclient.Pipeline {
	var started sync.Map // *httpclient.PendingRequest -> time.Time

	elapsed := func(pr *httpclient.PendingRequest) time.Duration {
		v, ok := started.LoadAndDelete(pr)
		if !ok {
			return 0
		}
		return time.Since(v.(time.Time))
	}

	return httpclient.NewPipeline().
		OnRequest(func(ctx context.Context, pr *httpclient.PendingRequest) (*httpclient.Response, error) {
			started.Store(pr, time.Now())
			return nil, nil
		}).
		OnResponse(func(ctx context.Context, resp *httpclient.Response) (*httpclient.Response, error) {
			pr := resp.PendingRequest()
			c.Record(elapsed(pr), Outcome{Method: pr.Method(), Status: resp.Status(), Mocked: resp.IsMocked()})
			return nil, nil
		}).
		OnError(func(ctx context.Context, pr *httpclient.PendingRequest, err error) {
			c.Record(elapsed(pr), Outcome{Method: pr.Method(), Err: err})
		})
}
