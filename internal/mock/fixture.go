package mock

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/torosent/courier/internal/bag"
	"github.com/torosent/courier/internal/httpclient"
)

// ErrFixtureMissing is returned when a fixture file does not exist and
// recording is off.
var ErrFixtureMissing = errors.New("fixture missing")

// RecordedResponse is the persisted form of a response:
//
//	{
//	    "statusCode": 200,
//	    "headers": {"Content-Type": "application/json"},
//	    "data": {"name": "Sam"}
//	}
//
// Data holds the body decoded as JSON, or the body as a JSON string when it
// is not JSON.
type RecordedResponse struct {
	StatusCode int
	// Headers keep file order and the exact JSON of each value: a string, or
	// a list of strings in fixtures written by other tools.
	Headers *bag.Bag[json.RawMessage]
	Data    json.RawMessage
}

type recordedResponseFile struct {
	StatusCode int              `json:"statusCode"`
	Headers    json.RawMessage  `json:"headers"`
	Data       *json.RawMessage `json:"data"`
}

// AddHeader stores value, a string or a list of strings, under key.
func (r *RecordedResponse) AddHeader(key string, value any) error {
	raw, err := encodeJSON(value)
	if err != nil {
		return fmt.Errorf("encode fixture header %q: %w", key, err)
	}
	if r.Headers == nil {
		r.Headers = bag.New[json.RawMessage]()
	}
	r.Headers.Add(key, raw)
	return nil
}

// FromFile parses a fixture file. An empty header list, as written by PHP's
// json_encode, is read as no headers.
func FromFile(data []byte) (*RecordedResponse, error) {
	var aux struct {
		StatusCode int             `json:"statusCode"`
		Headers    json.RawMessage `json:"headers"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	out := &RecordedResponse{StatusCode: aux.StatusCode, Headers: bag.New[json.RawMessage](), Data: aux.Data}
	headers := bytes.TrimSpace(aux.Headers)
	switch {
	case len(headers) == 0, string(headers) == "null":
	case headers[0] == '[':
		var list []json.RawMessage
		if err := json.Unmarshal(headers, &list); err != nil || len(list) > 0 {
			return nil, errors.New("parse fixture headers: want an object or an empty list")
		}
	default:
		if err := out.Headers.UnmarshalJSON(headers); err != nil {
			return nil, fmt.Errorf("parse fixture headers: %w", err)
		}
	}
	return out, nil
}

// ToFile renders the fixture with four-space indentation. Empty headers are
// written as [] like PHP's json_encode. Parsing and rendering a fixture in
// this form yields identical bytes.
func (r *RecordedResponse) ToFile() ([]byte, error) {
	headers := json.RawMessage("[]")
	if r.Headers != nil && !r.Headers.IsEmpty() {
		encoded, err := r.Headers.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode fixture headers: %w", err)
		}
		headers = encoded
	}
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(recordedResponseFile{StatusCode: r.StatusCode, Headers: headers, Data: &data}); err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FromResponse captures resp for persisting.
func FromResponse(resp *httpclient.Response) (*RecordedResponse, error) {
	out := &RecordedResponse{StatusCode: resp.Status(), Headers: bag.New[json.RawMessage]()}
	for _, e := range resp.Headers().Entries() {
		if err := out.AddHeader(e.Key, e.Value); err != nil {
			return nil, err
		}
	}

	var data json.RawMessage
	raw := bytes.TrimSpace(resp.Body())
	if len(raw) > 0 && json.Valid(raw) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, err
		}
		data = compact.Bytes()
	} else {
		encoded, err := encodeJSON(string(resp.Body()))
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	out.Data = data
	return out, nil
}

// Body returns the response body: the string itself when Data is a JSON
// string, otherwise Data in compact form.
func (r *RecordedResponse) Body() ([]byte, error) {
	trimmed := bytes.TrimSpace(r.Data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("decode fixture data: %w", err)
		}
		return []byte(s), nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, fmt.Errorf("compact fixture data: %w", err)
	}
	return compact.Bytes(), nil
}

// HeaderBag flattens the headers into a response header bag. List values
// are joined with ", ".
func (r *RecordedResponse) HeaderBag() *bag.Bag[string] {
	out := bag.NewHeaders()
	for _, e := range r.Headers.Entries() {
		var value any
		if err := json.Unmarshal(e.Value, &value); err != nil {
			out.Add(e.Key, string(e.Value))
			continue
		}
		switch v := value.(type) {
		case string:
			out.Add(e.Key, v)
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			out.Add(e.Key, strings.Join(parts, ", "))
		case nil:
		default:
			out.Add(e.Key, fmt.Sprint(v))
		}
	}
	return out
}

// ToMockResponse converts the fixture to a mock response.
func (r *RecordedResponse) ToMockResponse() (*MockResponse, error) {
	data, err := r.Body()
	if err != nil {
		return nil, err
	}
	m := Make(data).WithStatus(r.StatusCode)
	m.headers = r.HeaderBag()
	return m, nil
}

// FixtureStore reads and writes fixture files under Dir. Names may contain
// slashes to group fixtures in subdirectories.
type FixtureStore struct {
	Dir string
}

// DefaultFixtureDir is used by clients without a fixture store.
const DefaultFixtureDir = "tests/fixtures"

func NewFixtureStore(dir string) *FixtureStore {
	if dir == "" {
		dir = DefaultFixtureDir
	}
	return &FixtureStore{Dir: dir}
}

// Path returns the file that holds the named fixture.
func (s *FixtureStore) Path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid fixture name %q", name)
	}
	return filepath.Join(s.Dir, clean+".json"), nil
}

// Exists reports whether the named fixture has been recorded.
func (s *FixtureStore) Exists(name string) bool {
	path, err := s.Path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the named fixture. A missing file yields ErrFixtureMissing.
func (s *FixtureStore) Load(name string) (*RecordedResponse, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFixtureMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return FromFile(data)
}

// Save writes the named fixture. Writers in other processes are excluded
// with a lock file next to the fixture.
func (s *FixtureStore) Save(name string, r *RecordedResponse) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	data, err := r.ToFile()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock fixture %s: %w", path, err)
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}
