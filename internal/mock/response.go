package mock

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/torosent/courier/internal/bag"
	"github.com/torosent/courier/internal/body"
)

// MockResponse is a pre-registered response. It is never changed by a
// match; Merge and Through transforms are applied to a copy of its body.
type MockResponse struct {
	status  int
	headers *bag.Bag[string]
	body    []byte
	err     error
	fixture string
	// buildErr records a body that could not be rendered by Make.
	buildErr error

	transforms []transform
	// uses is the number of matches allowed; -1 is unlimited and 0 means
	// the rule's default (one for sequence rules, unlimited for keyed rules).
	uses int
}

type transform struct {
	merge   map[string]any
	through func(data any) (any, error)
}

// Make returns a 200 response with data as its body. Strings and byte
// slices are used as-is, body repositories are rendered, and any other value
// is encoded as JSON.
func Make(data any) *MockResponse {
	m := &MockResponse{status: http.StatusOK, headers: bag.NewHeaders()}
	switch v := data.(type) {
	case nil:
	case string:
		m.body = []byte(v)
	case []byte:
		m.body = v
	case body.Repository:
		b, err := v.Bytes()
		if err != nil {
			m.buildErr = err
			break
		}
		m.body = b
		if ct, ok := v.(body.ContentTyper); ok {
			m.headers.Add("Content-Type", ct.ContentType())
		}
	default:
		b, err := encodeJSON(v)
		if err != nil {
			m.buildErr = fmt.Errorf("encode mock body: %w", err)
			break
		}
		m.body = b
		m.headers.Add("Content-Type", "application/json")
	}
	return m
}

// Error returns a rule that fails like the network would, with err wrapped
// in a *sender.TransportError.
func Error(err error) *MockResponse {
	return &MockResponse{err: err, headers: bag.NewHeaders()}
}

// Fixture returns a rule answered from the named fixture file of the
// client's fixture store.
func Fixture(name string) *MockResponse {
	return &MockResponse{fixture: name, headers: bag.NewHeaders()}
}

// WithStatus sets the status code.
func (m *MockResponse) WithStatus(status int) *MockResponse {
	m.status = status
	return m
}

// WithHeader sets one header.
func (m *MockResponse) WithHeader(key, value string) *MockResponse {
	m.headers.Add(key, value)
	return m
}

// WithHeaders sets several headers.
func (m *MockResponse) WithHeaders(headers map[string]string) *MockResponse {
	m.headers.AddMap(headers)
	return m
}

// Merge overwrites values of the decoded JSON body. Keys without dots are
// applied first; dotted keys then address nested values, with numeric
// segments indexing lists: "data.0.twitter".
func (m *MockResponse) Merge(values map[string]any) *MockResponse {
	m.transforms = append(m.transforms, transform{merge: values})
	return m
}

// Through runs fn over the decoded JSON body and encodes its result.
func (m *MockResponse) Through(fn func(data any) (any, error)) *MockResponse {
	m.transforms = append(m.transforms, transform{through: fn})
	return m
}

// Repeat lets the rule match any number of times.
func (m *MockResponse) Repeat() *MockResponse {
	m.uses = -1
	return m
}

// Times lets the rule match n times.
func (m *MockResponse) Times(n int) *MockResponse {
	if n < 1 {
		n = 1
	}
	m.uses = n
	return m
}

// Status returns the configured status code.
func (m *MockResponse) Status() int { return m.status }

// FixtureName returns the fixture backing this rule, or "".
func (m *MockResponse) FixtureName() string { return m.fixture }

// render applies the transforms to body.
func (m *MockResponse) render(data []byte) ([]byte, error) {
	if len(m.transforms) == 0 {
		return data, nil
	}

	var decoded any
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode body for transform: %w", err)
		}
	}

	for _, t := range m.transforms {
		var err error
		if t.through != nil {
			decoded, err = t.through(decoded)
		} else {
			decoded, err = mergeData(decoded, t.merge)
		}
		if err != nil {
			return nil, err
		}
	}
	return encodeJSON(decoded)
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
