package body

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/torosent/courier/internal/bag"
)

func TestFormRendersPairsInInsertionOrder(t *testing.T) {
	values := bag.New[any]()
	values.Add("name", "Sam")
	values.Add("catchphrase", "Yeehaw!")

	form, err := NewForm(values)
	if err != nil {
		t.Fatalf("NewForm() error = %v", err)
	}

	if got, want := form.String(), "name=Sam&catchphrase=Yeehaw%21"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := form.ContentType(); got != "application/x-www-form-urlencoded" {
		t.Fatalf("ContentType() = %q", got)
	}
}

func TestFormNestedValues(t *testing.T) {
	form, err := NewForm(nil)
	if err != nil {
		t.Fatalf("NewForm() error = %v", err)
	}
	form.Add("tags", []string{"a", "b"})
	form.Add("user", map[string]any{"name": "Sam", "age": 30})
	form.Add("active", true)
	form.Add("skipped", nil)

	want := "tags%5B0%5D=a&tags%5B1%5D=b&user%5Bage%5D=30&user%5Bname%5D=Sam&active=1"
	if got := form.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestJSONRendersCompactObject(t *testing.T) {
	values := bag.New[any]()
	values.Add("name", "Sam")
	values.Add("tags", []any{"a", "b"})

	body, err := NewJSON(values)
	if err != nil {
		t.Fatalf("NewJSON() error = %v", err)
	}

	if got, want := body.String(), `{"name":"Sam","tags":["a","b"]}`; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := body.ContentType(); got != "application/json" {
		t.Fatalf("ContentType() = %q", got)
	}
}

func TestJSONAcceptsStructs(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	body, err := NewJSON(payload{Name: "Sam", Age: 30})
	if err != nil {
		t.Fatalf("NewJSON() error = %v", err)
	}
	if got, want := body.String(), `{"name":"Sam","age":30}`; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	body.Merge(map[string]any{"age": 31})
	if v, _ := body.Get("age"); v != 31 {
		t.Fatalf("Get(age) = %v, want 31", v)
	}
}

func TestJSONRejectsNonObjects(t *testing.T) {
	_, err := NewJSON([]int{1, 2})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("NewJSON(slice) error = %v, want ErrValidation", err)
	}
}

func TestRawRejectsUnsupportedValues(t *testing.T) {
	if _, err := NewRaw(42); !errors.Is(err, ErrValidation) {
		t.Fatalf("NewRaw(42) error = %v, want ErrValidation", err)
	}

	raw, err := NewRaw([]byte("hello"))
	if err != nil {
		t.Fatalf("NewRaw() error = %v", err)
	}
	if raw.String() != "hello" || raw.IsEmpty() {
		t.Fatalf("raw = %q, empty=%v", raw.String(), raw.IsEmpty())
	}
}

func TestXMLContentType(t *testing.T) {
	x, err := NewXML("<a/>")
	if err != nil {
		t.Fatalf("NewXML() error = %v", err)
	}
	var _ Repository = x
	if x.ContentType() != "application/xml" || x.String() != "<a/>" {
		t.Fatalf("xml = %q (%s)", x.String(), x.ContentType())
	}
}

func TestMultipartValueValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{name: "string", value: "Sam"},
		{name: "int", value: 42},
		{name: "float", value: 1.5},
		{name: "reader", value: strings.NewReader("data")},
		{name: "map", value: map[string]any{}, wantErr: true},
		{name: "nil", value: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMultipartValue("field", tt.value, "", nil)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMultipartRendersParts(t *testing.T) {
	m, err := NewMultipart()
	if err != nil {
		t.Fatalf("NewMultipart() error = %v", err)
	}
	if err := m.Add("name", "Sam", "", nil); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := m.Add("avatar", io.NopCloser(strings.NewReader("png-bytes")), "avatar.png", map[string]string{"Content-Type": "image/png"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	first, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	second, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() second render error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("multipart body changed between renders")
	}

	mediaType, params, err := mime.ParseMediaType(m.ContentType())
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("ContentType() = %q, err = %v", m.ContentType(), err)
	}

	reader := multipart.NewReader(strings.NewReader(string(first)), params["boundary"])
	part, err := reader.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	if part.FormName() != "name" {
		t.Fatalf("first part = %q, want name", part.FormName())
	}
	part, err = reader.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	data, _ := io.ReadAll(part)
	if part.FileName() != "avatar.png" || string(data) != "png-bytes" {
		t.Fatalf("second part = %q %q", part.FileName(), data)
	}
	if part.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("part Content-Type = %q", part.Header.Get("Content-Type"))
	}
}

func TestStreamBuffersOnce(t *testing.T) {
	s, err := NewStream(strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if got := s.String(); got != "payload" {
			t.Fatalf("render %d = %q, want payload", i, got)
		}
	}

	if _, err := NewStream("not a reader"); !errors.Is(err, ErrValidation) {
		t.Fatalf("NewStream(string) error = %v, want ErrValidation", err)
	}
}

func TestFileBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "body.txt")
	content := "file content"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if f.ContentLength() != int64(len(content)) {
		t.Errorf("ContentLength() = %d, want %d", f.ContentLength(), len(content))
	}

	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != content {
		t.Errorf("Open() content = %q, want %q", got, content)
	}

	if _, err := NewFile(dir); !errors.Is(err, ErrValidation) {
		t.Errorf("NewFile(dir) error = %v, want ErrValidation", err)
	}
	if _, err := NewFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("NewFile(missing) error = nil, want error")
	}
}

func TestNewReaderNilRepository(t *testing.T) {
	rc, err := NewReader(nil)
	if err != nil {
		t.Fatalf("NewReader(nil) error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	if len(data) != 0 {
		t.Fatalf("NewReader(nil) = %q, want empty", data)
	}
}
