package body

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MultipartValue is one part of a multipart body.
type MultipartValue struct {
	Name string
	// Value is an io.Reader (streams and open files), a string or a number.
	Value    any
	Filename string
	Headers  map[string]string
}

// NewMultipartValue validates value and returns the part.
func NewMultipartValue(name string, value any, filename string, headers map[string]string) (MultipartValue, error) {
	v := MultipartValue{Name: name, Value: value, Filename: filename, Headers: headers}
	if err := v.Validate(); err != nil {
		return MultipartValue{}, err
	}
	return v, nil
}

// Validate checks that Value is stream-like, a string or numeric.
func (v MultipartValue) Validate() error {
	switch v.Value.(type) {
	case io.Reader, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	}
	return &ValidationError{
		Variant: "multipart",
		Value:   v.Value,
		Reason:  "the value property must be either an io.Reader, a file, a string or numeric",
	}
}

func (v MultipartValue) content() (io.Reader, error) {
	switch val := v.Value.(type) {
	case io.Reader:
		if s, ok := val.(io.Seeker); ok {
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind part %q: %w", v.Name, err)
			}
		}
		return val, nil
	case string:
		return strings.NewReader(val), nil
	case float64:
		return strings.NewReader(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case float32:
		return strings.NewReader(strconv.FormatFloat(float64(val), 'f', -1, 32)), nil
	default:
		return strings.NewReader(fmt.Sprint(val)), nil
	}
}

// Multipart renders its parts as multipart/form-data with a fixed boundary.
type Multipart struct {
	mu       sync.Mutex
	boundary string
	values   []MultipartValue
	err      error
}

// NewMultipart validates every part and returns the body.
func NewMultipart(values ...MultipartValue) (*Multipart, error) {
	m := &Multipart{boundary: randomBoundary()}
	if err := m.Set(values); err != nil {
		return nil, err
	}
	return m, nil
}

// Set accepts []MultipartValue, MultipartValue or nil.
func (m *Multipart) Set(value any) error {
	var values []MultipartValue
	switch v := value.(type) {
	case nil:
	case []MultipartValue:
		values = append(values, v...)
	case MultipartValue:
		values = []MultipartValue{v}
	default:
		return &ValidationError{Variant: "multipart", Value: value, Reason: "value must be multipart values"}
	}
	for _, part := range values {
		if err := part.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.values, m.err = values, nil
	m.mu.Unlock()
	return nil
}

// Add appends a part after validating it.
func (m *Multipart) Add(name string, value any, filename string, headers map[string]string) error {
	part, err := NewMultipartValue(name, value, filename, headers)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values = append(m.values, part)
	m.mu.Unlock()
	return nil
}

// Get returns the first part named name.
func (m *Multipart) Get(name string) (MultipartValue, bool) {
	for _, v := range m.values {
		if v.Name == name {
			return v, true
		}
	}
	return MultipartValue{}, false
}

func (m *Multipart) All() any {
	return append([]MultipartValue(nil), m.values...)
}

func (m *Multipart) IsEmpty() bool    { return len(m.values) == 0 }
func (m *Multipart) IsNotEmpty() bool { return !m.IsEmpty() }

// Boundary returns the boundary used between parts.
func (m *Multipart) Boundary() string {
	if m.boundary == "" {
		m.boundary = randomBoundary()
	}
	return m.boundary
}

func (m *Multipart) ContentType() string {
	w := multipart.NewWriter(io.Discard)
	_ = w.SetBoundary(m.Boundary())
	return w.FormDataContentType()
}

func (m *Multipart) Bytes() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(m.Boundary()); err != nil {
		return nil, fmt.Errorf("multipart boundary: %w", err)
	}

	for i := range m.values {
		if err := m.writePart(w, i); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Multipart) String() string { return render(m) }

// Clone copies every part. Reader values are read into memory and both the
// original and the copy continue from their own buffer. A read failure is
// reported by the copy's Bytes.
func (m *Multipart) Clone() Repository {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &Multipart{boundary: m.boundary, err: m.err}
	for i, part := range m.values {
		if len(part.Headers) > 0 {
			headers := make(map[string]string, len(part.Headers))
			for k, v := range part.Headers {
				headers[k] = v
			}
			part.Headers = headers
		}
		if r, ok := part.Value.(io.Reader); ok {
			data, err := readAllFromStart(r)
			if err != nil {
				c.err = fmt.Errorf("read part %q: %w", part.Name, err)
				return c
			}
			m.values[i].Value = bytes.NewReader(data)
			part.Value = bytes.NewReader(data)
		}
		c.values = append(c.values, part)
	}
	return c
}

func readAllFromStart(r io.Reader) ([]byte, error) {
	if s, ok := r.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(r)
}

func (m *Multipart) writePart(w *multipart.Writer, i int) error {
	part := m.values[i]

	// One-shot readers are buffered on first render so the body can be
	// rendered again for retries and assertions.
	if r, ok := part.Value.(io.Reader); ok {
		if _, seekable := r.(io.Seeker); !seekable {
			data, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read part %q: %w", part.Name, err)
			}
			part.Value = bytes.NewReader(data)
			m.values[i] = part
		}
	}

	header := make(textproto.MIMEHeader)
	disposition := fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(part.Name))
	if part.Filename != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, escapeQuotes(part.Filename))
	}
	header.Set("Content-Disposition", disposition)

	keys := make([]string, 0, len(part.Headers))
	for k := range part.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		header.Set(k, part.Headers[k])
	}

	pw, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	content, err := part.content()
	if err != nil {
		return err
	}
	_, err = io.Copy(pw, content)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func randomBoundary() string {
	var buf [30]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", buf[:])
}
