package mock

import (
	"errors"
	"fmt"
)

// ErrRequestNotFound is matched by every *RequestNotFoundError.
var ErrRequestNotFound = errors.New("mock request not found")

// RequestNotFoundError reports a request no rule answered while stray
// requests are prevented.
type RequestNotFoundError struct {
	Method string
	URL    string
}

func (e *RequestNotFoundError) Error() string {
	return fmt.Sprintf("no mock response for %s %s", e.Method, e.URL)
}

func (e *RequestNotFoundError) Is(target error) bool { return target == ErrRequestNotFound }
