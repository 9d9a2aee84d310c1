package body

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// File streams the content of a file on disk. The file is reopened on every
// render, so the body can be sent any number of times.
type File struct {
	path string
	size int64
}

// NewFile returns a file body for path.
func NewFile(path string) (*File, error) {
	f := &File{}
	if err := f.Set(path); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Set(value any) error {
	switch v := value.(type) {
	case nil:
		f.path, f.size = "", 0
		return nil
	case string:
		path := strings.TrimSpace(v)
		if path == "" {
			f.path, f.size = "", 0
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return &ValidationError{Variant: "file", Value: value, Reason: err.Error()}
		}
		if info.IsDir() {
			return &ValidationError{Variant: "file", Value: value, Reason: fmt.Sprintf("%q is a directory", path)}
		}
		f.path, f.size = path, info.Size()
		return nil
	}
	return &ValidationError{Variant: "file", Value: value, Reason: "value must be a file path"}
}

// Path returns the file path, or "" when unset.
func (f *File) Path() string { return f.path }

// ContentLength reports the file size captured when the path was set.
func (f *File) ContentLength() int64 { return f.size }

func (f *File) All() any { return f.path }

func (f *File) IsEmpty() bool    { return f.path == "" }
func (f *File) IsNotEmpty() bool { return !f.IsEmpty() }

// Open returns a fresh reader over the file.
func (f *File) Open() (io.ReadCloser, error) {
	if f.path == "" {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return os.Open(f.path)
}

func (f *File) Bytes() ([]byte, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	return data, nil
}

func (f *File) String() string { return render(f) }

func (f *File) Clone() Repository {
	c := *f
	return &c
}
