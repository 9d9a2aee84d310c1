// Package sender executes finalized HTTP requests. It is the only place in
// courier that touches the network.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Config keys read from a pending request's config bag.
const (
	ConfigTimeout = "timeout"
	ConfigDigest  = "digest"
)

// DigestCredentials enable HTTP digest authentication for one request. The
// sender answers the server's challenge; no header is set up front.
type DigestCredentials struct {
	Username string
	Password string
}

// Options carries per-request transport settings.
type Options struct {
	// Timeout bounds the whole exchange. Zero means no per-request timeout.
	Timeout time.Duration
	Digest  *DigestCredentials
}

// Sender sends one request and returns the raw response. Implementations
// must report failures as *TransportError.
type Sender interface {
	Send(ctx context.Context, req *http.Request, opts Options) (*http.Response, error)
}

// Func adapts a function to the Sender interface.
type Func func(ctx context.Context, req *http.Request, opts Options) (*http.Response, error)

func (f Func) Send(ctx context.Context, req *http.Request, opts Options) (*http.Response, error) {
	return f(ctx, req, opts)
}

// ErrTransport is matched by every *TransportError.
var ErrTransport = errors.New("transport failure")

// TransportError reports a failure below the HTTP layer: DNS, dial, TLS,
// timeouts or a broken connection.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Wrap returns err as a *TransportError for req, leaving errors that already
// are transport errors untouched.
func Wrap(req *http.Request, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	out := &TransportError{Err: err}
	if req != nil {
		out.Method = req.Method
		if req.URL != nil {
			out.URL = req.URL.String()
		}
	}
	return out
}
