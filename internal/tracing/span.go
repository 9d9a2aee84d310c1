package tracing

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/courier/internal/bag"
	"github.com/torosent/courier/internal/httpclient"
)

// StartRequestSpan starts a client span for a pending request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, pr *httpclient.PendingRequest) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "HTTP "+pr.Method(),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", pr.Method()),
		attribute.String("url.full", pr.FullURL()),
		attribute.String("courier.request.id", pr.ID()),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// headerCarrier adapts a header bag to the OTel TextMapCarrier interface.
type headerCarrier struct {
	b *bag.Bag[string]
}

func (c headerCarrier) Get(key string) string { return c.b.Value(key) }
func (c headerCarrier) Set(key, value string) { c.b.Add(key, value) }
func (c headerCarrier) Keys() []string        { return c.b.Keys() }

// InjectHeaders injects W3C trace context into a pending request's headers.
func InjectHeaders(ctx context.Context, headers *bag.Bag[string]) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{b: headers})
}

// Middleware returns hooks that wrap each send in a client span. When p
// propagates, the span's traceparent is added to the outgoing headers.
// Statuses of 400 and above mark the span as failed.
func Middleware(p *Provider) *httpclient.Pipeline {
	var spans sync.Map // *httpclient.PendingRequest -> trace.Span

	end := func(pr *httpclient.PendingRequest, err error, attrs ...attribute.KeyValue) {
		v, ok := spans.LoadAndDelete(pr)
		if !ok {
			return
		}
		EndSpan(v.(trace.Span), err, attrs...)
	}

	return httpclient.NewPipeline().
		OnRequest(func(ctx context.Context, pr *httpclient.PendingRequest) (*httpclient.Response, error) {
			spanCtx, span := StartRequestSpan(ctx, p.Tracer(), pr)
			if p.ShouldPropagate() {
				InjectHeaders(spanCtx, pr.Headers())
			}
			spans.Store(pr, span)
			return nil, nil
		}).
		OnResponse(func(ctx context.Context, resp *httpclient.Response) (*httpclient.Response, error) {
			attrs := []attribute.KeyValue{
				attribute.Int("http.response.status_code", resp.Status()),
				attribute.Bool("courier.mocked", resp.IsMocked()),
			}
			var err error
			if resp.IsFailed() {
				err = fmt.Errorf("status %d", resp.Status())
			}
			end(resp.PendingRequest(), err, attrs...)
			return nil, nil
		}).
		OnError(func(ctx context.Context, pr *httpclient.PendingRequest, err error) {
			end(pr, err)
		})
}
