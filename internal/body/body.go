// Package body holds the request body repositories. Each repository wraps
// exactly one logical value and renders it to the bytes that go on the wire.
package body

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/torosent/courier/internal/bag"
)

// Repository is the contract shared by every body variant.
type Repository interface {
	fmt.Stringer

	// Set replaces the wrapped value. Values outside the variant's accepted
	// domain are rejected with a *ValidationError.
	Set(value any) error

	// All returns the wrapped value.
	All() any

	IsEmpty() bool
	IsNotEmpty() bool

	// Bytes renders the body exactly as it is transmitted.
	Bytes() ([]byte, error)

	// Clone returns an independent copy. Mutating the copy never changes the
	// original, and the two can be rendered concurrently.
	Clone() Repository
}

// ContentTyper is implemented by variants that imply a Content-Type header.
type ContentTyper interface {
	ContentType() string
}

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("body validation failed")

// ValidationError reports a value that does not belong to a variant's domain.
type ValidationError struct {
	Variant string
	Value   any
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s body: %s, got %T", e.Variant, e.Reason, e.Value)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewReader returns a fresh reader over the rendered body.
func NewReader(r Repository) (io.ReadCloser, error) {
	if r == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// copyValue deep-copies the maps, slices and bags of a keyed body value.
// Other values are returned as they are.
func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = copyValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case *bag.Bag[any]:
		out := bag.New[any]()
		for _, e := range v.Entries() {
			out.Add(e.Key, copyValue(e.Value))
		}
		return out
	}
	return value
}

// render adapts Bytes for String, which cannot fail.
func render(r Repository) string {
	data, err := r.Bytes()
	if err != nil {
		return ""
	}
	return string(data)
}
