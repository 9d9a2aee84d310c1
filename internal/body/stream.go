package body

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Stream wraps an io.Reader. The stream is drained on first render and kept
// in memory so the body can be rendered more than once.
type Stream struct {
	mu     sync.Mutex
	reader io.Reader
	data   []byte
	read   bool
	err    error
}

// NewStream returns a stream body over r.
func NewStream(r any) (*Stream, error) {
	s := &Stream{}
	if err := s.Set(r); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) Set(value any) error {
	switch v := value.(type) {
	case nil:
		s.reader = nil
	case io.Reader:
		s.reader = v
	default:
		return &ValidationError{Variant: "stream", Value: value, Reason: "value must be an io.Reader"}
	}
	s.data, s.read, s.err = nil, false, nil
	return nil
}

func (s *Stream) All() any {
	if s.read {
		return bytes.NewReader(s.data)
	}
	return s.reader
}

func (s *Stream) IsEmpty() bool    { return s.reader == nil }
func (s *Stream) IsNotEmpty() bool { return !s.IsEmpty() }

func (s *Stream) Bytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.reader == nil {
		return nil, nil
	}
	if !s.read {
		data, err := io.ReadAll(s.reader)
		if err != nil {
			return nil, fmt.Errorf("read stream body: %w", err)
		}
		if c, ok := s.reader.(io.Closer); ok {
			_ = c.Close()
		}
		s.data, s.read = data, true
	}
	return s.data, nil
}

func (s *Stream) String() string { return render(s) }

// Clone drains the stream into memory and returns a copy over the same bytes.
// A read failure is reported by the copy's Bytes.
func (s *Stream) Clone() Repository {
	if s.reader == nil {
		return &Stream{}
	}
	data, err := s.Bytes()
	if err != nil {
		return &Stream{reader: s.reader, err: err}
	}
	return &Stream{reader: bytes.NewReader(data), data: data, read: true}
}
