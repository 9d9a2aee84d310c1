package httpclient

import (
	"context"
	"fmt"
)

// RequestHook runs before dispatch and may mutate the pending request. A
// non-nil response skips the remaining request hooks and the dispatch.
type RequestHook func(ctx context.Context, pr *PendingRequest) (*Response, error)

// ResponseHook runs after dispatch. A non-nil return replaces the response.
type ResponseHook func(ctx context.Context, resp *Response) (*Response, error)

// ErrorHook observes a send that failed after its pending request was built.
// It cannot recover the error.
type ErrorHook func(ctx context.Context, pr *PendingRequest, err error)

// Pipeline is an ordered list of request and response hooks. Hooks run
// synchronously in registration order; a pending request runs the
// connector's hooks before the request's.
type Pipeline struct {
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	errorHooks    []ErrorHook
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// OnRequest appends request hooks.
func (p *Pipeline) OnRequest(hooks ...RequestHook) *Pipeline {
	for _, h := range hooks {
		if h != nil {
			p.requestHooks = append(p.requestHooks, h)
		}
	}
	return p
}

// OnResponse appends response hooks.
func (p *Pipeline) OnResponse(hooks ...ResponseHook) *Pipeline {
	for _, h := range hooks {
		if h != nil {
			p.responseHooks = append(p.responseHooks, h)
		}
	}
	return p
}

// OnError appends error hooks.
func (p *Pipeline) OnError(hooks ...ErrorHook) *Pipeline {
	for _, h := range hooks {
		if h != nil {
			p.errorHooks = append(p.errorHooks, h)
		}
	}
	return p
}

// Use merges the hooks of a prebuilt middleware into p.
func (p *Pipeline) Use(m *Pipeline) *Pipeline {
	return p.Merge(m)
}

// Merge appends the hooks of others, in order, to p.
func (p *Pipeline) Merge(others ...*Pipeline) *Pipeline {
	for _, o := range others {
		if o == nil {
			continue
		}
		p.requestHooks = append(p.requestHooks, o.requestHooks...)
		p.responseHooks = append(p.responseHooks, o.responseHooks...)
		p.errorHooks = append(p.errorHooks, o.errorHooks...)
	}
	return p
}

// Len returns the number of request and response hooks.
func (p *Pipeline) Len() (request, response int) {
	if p == nil {
		return 0, 0
	}
	return len(p.requestHooks), len(p.responseHooks)
}

func (p *Pipeline) runRequest(ctx context.Context, pr *PendingRequest) (*Response, error) {
	for i, h := range p.requestHooks {
		resp, err := h(ctx, pr)
		if err != nil {
			return nil, &PipelineHookError{Stage: StageRequest, Index: i, Err: err}
		}
		if resp != nil {
			if resp.pending == nil {
				resp.pending = pr
			}
			return resp, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) runResponse(ctx context.Context, resp *Response) (*Response, error) {
	for i, h := range p.responseHooks {
		next, err := h(ctx, resp)
		if err != nil {
			return nil, &PipelineHookError{Stage: StageResponse, Index: i, Err: err}
		}
		if next != nil {
			if next.pending == nil {
				next.pending = resp.pending
			}
			resp = next
		}
	}
	return resp, nil
}

func (p *Pipeline) runError(ctx context.Context, pr *PendingRequest, err error) {
	for _, h := range p.errorHooks {
		h(ctx, pr, err)
	}
}

// Hook stages reported by PipelineHookError.
const (
	StageBoot     = "boot"
	StageRequest  = "request"
	StageResponse = "response"
)

// PipelineHookError reports a hook that returned an error. The remaining
// hooks did not run.
type PipelineHookError struct {
	Stage string
	Index int
	Err   error
}

func (e *PipelineHookError) Error() string {
	return fmt.Sprintf("%s hook #%d: %v", e.Stage, e.Index, e.Err)
}

func (e *PipelineHookError) Unwrap() error { return e.Err }
