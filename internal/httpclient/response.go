package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/torosent/courier/internal/bag"
)

// Response wraps the outcome of a send, real or mocked.
type Response struct {
	pending *PendingRequest
	status  int
	headers *bag.Bag[string]
	body    []byte

	raw     *http.Response
	httpReq *http.Request
	mocked  bool
}

// NewResponse builds a synthetic response. It reports IsMocked.
func NewResponse(pr *PendingRequest, status int, headers *bag.Bag[string], data []byte) *Response {
	h := bag.NewHeaders()
	h.Merge(headers)
	return &Response{pending: pr, status: status, headers: h, body: data, mocked: true}
}

// newHTTPResponse reads raw in full and closes its body.
func newHTTPResponse(pr *PendingRequest, req *http.Request, raw *http.Response) (*Response, error) {
	var data []byte
	if raw.Body != nil {
		var err error
		data, err = io.ReadAll(raw.Body)
		_ = raw.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		raw.Body = io.NopCloser(bytes.NewReader(data))
	}
	return &Response{
		pending: pr,
		status:  raw.StatusCode,
		headers: HeadersFromHTTP(raw.Header),
		body:    data,
		raw:     raw,
		httpReq: req,
	}, nil
}

// HeadersFromHTTP converts h to a header bag. Keys are sorted and repeated
// values joined with ", ".
func HeadersFromHTTP(h http.Header) *bag.Bag[string] {
	out := bag.NewHeaders()
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Add(k, strings.Join(h[k], ", "))
	}
	return out
}

func (r *Response) Status() int { return r.status }

// Header returns the value of key, case-insensitively.
func (r *Response) Header(key string) string { return r.headers.Value(key) }

func (r *Response) Headers() *bag.Bag[string] { return r.headers }

func (r *Response) Body() []byte { return r.body }

func (r *Response) String() string { return string(r.body) }

// JSON returns the body as a gjson result, or the value at path when given.
// Paths may start with "$." as in JSONPath.
func (r *Response) JSON(path ...string) gjson.Result {
	if len(path) == 0 || path[0] == "" || path[0] == "$" {
		return gjson.ParseBytes(r.body)
	}
	return gjson.GetBytes(r.body, strings.TrimPrefix(path[0], "$."))
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ErrNoDTOFactory is returned by DTO when neither the request nor the
// connector implements DTOFactory.
var ErrNoDTOFactory = errors.New("no DTO factory on request or connector")

// DTO builds the user's data object through the request's DTOFactory, or the
// connector's when the request has none.
func (r *Response) DTO() (any, error) {
	if r.pending != nil {
		if f, ok := r.pending.request.(DTOFactory); ok {
			return f.CreateDTOFromResponse(r)
		}
		if f, ok := r.pending.connector.(DTOFactory); ok {
			return f.CreateDTOFromResponse(r)
		}
	}
	return nil, ErrNoDTOFactory
}

// IsMocked reports whether the response was produced without a network call.
func (r *Response) IsMocked() bool { return r.mocked }

func (r *Response) IsSuccessful() bool { return r.status >= 200 && r.status < 300 }
func (r *Response) IsRedirect() bool   { return r.status >= 300 && r.status < 400 }
func (r *Response) IsClientError() bool {
	return r.status >= 400 && r.status < 500
}
func (r *Response) IsServerError() bool { return r.status >= 500 }

// IsFailed reports a 4xx or 5xx status.
func (r *Response) IsFailed() bool { return r.IsClientError() || r.IsServerError() }

// Throw returns a *StatusError when the response failed.
func (r *Response) Throw() error {
	if !r.IsFailed() {
		return nil
	}
	return &StatusError{StatusCode: r.status, Body: r.String(), Response: r}
}

func (r *Response) PendingRequest() *PendingRequest { return r.pending }

// Request returns the request definition that produced the response.
func (r *Response) Request() Request {
	if r.pending == nil {
		return nil
	}
	return r.pending.request
}

// HTTPRequest returns the request put on the wire, nil when mocked.
func (r *Response) HTTPRequest() *http.Request { return r.httpReq }

// Raw returns the underlying response, nil when mocked.
func (r *Response) Raw() *http.Response { return r.raw }

// StatusError represents a failed HTTP exchange with status details.
type StatusError struct {
	StatusCode int
	Body       string
	Response   *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
