package body

import (
	"bytes"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/torosent/courier/internal/bag"
)

// Array is the keyed body shared by the JSON and form variants. Keys keep
// their insertion order so the rendered body is deterministic.
type Array struct {
	variant string
	values  *bag.Bag[any]
}

func newArray(variant string) Array {
	return Array{variant: variant, values: bag.New[any]()}
}

// Set replaces the content. It accepts map[string]any, map[string]string,
// *bag.Bag[any] and nil.
func (a *Array) Set(value any) error {
	switch v := value.(type) {
	case nil:
		a.values = bag.New[any]()
	case map[string]any:
		a.values = bag.FromMap(v)
	case map[string]string:
		a.values = bag.New[any]()
		for _, e := range bag.FromMap(v).Entries() {
			a.values.Add(e.Key, e.Value)
		}
	case *bag.Bag[any]:
		a.values = v.Clone()
	default:
		return &ValidationError{Variant: a.name(), Value: value, Reason: "value must be a keyed map"}
	}
	return nil
}

func (a *Array) name() string {
	if a.variant == "" {
		return "array"
	}
	return a.variant
}

func (a *Array) bag() *bag.Bag[any] {
	if a.values == nil {
		a.values = bag.New[any]()
	}
	return a.values
}

// Add writes a single key.
func (a *Array) Add(key string, value any) *Array {
	a.bag().Add(key, value)
	return a
}

// Get returns the value stored for key.
func (a *Array) Get(key string) (any, bool) {
	return a.bag().Get(key)
}

// Remove deletes key.
func (a *Array) Remove(key string) *Array {
	a.bag().Remove(key)
	return a
}

// Merge writes every map on top of the current content, in argument order.
func (a *Array) Merge(values ...map[string]any) *Array {
	for _, v := range values {
		a.bag().AddMap(v)
	}
	return a
}

// All returns the content as a map.
func (a *Array) All() any {
	return a.bag().All()
}

// Entries returns the content in insertion order.
func (a *Array) Entries() []bag.Entry[any] {
	return a.bag().Entries()
}

// clone deep-copies the content into a new Array.
func (a *Array) clone() Array {
	return Array{variant: a.variant, values: copyValue(a.bag()).(*bag.Bag[any])}
}

func (a *Array) IsEmpty() bool    { return a.bag().IsEmpty() }
func (a *Array) IsNotEmpty() bool { return !a.IsEmpty() }

// JSON renders its content as a compact JSON object.
type JSON struct {
	Array
}

// NewJSON returns a JSON body. Besides the Array inputs it accepts any value
// that encodes to a JSON object, such as a struct.
func NewJSON(value any) (*JSON, error) {
	j := &JSON{Array: newArray("json")}
	if err := j.Set(value); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *JSON) Set(value any) error {
	j.variant = "json"
	switch value.(type) {
	case nil, map[string]any, map[string]string, *bag.Bag[any]:
		return j.Array.Set(value)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return &ValidationError{Variant: "json", Value: value, Reason: err.Error()}
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return &ValidationError{Variant: "json", Value: value, Reason: "value must encode to a JSON object"}
	}
	decoded := bag.New[any]()
	if err := decoded.UnmarshalJSON(data); err != nil {
		return &ValidationError{Variant: "json", Value: value, Reason: err.Error()}
	}
	j.values = decoded
	return nil
}

func (j *JSON) ContentType() string { return "application/json" }

func (j *JSON) Clone() Repository { return &JSON{Array: j.clone()} }

func (j *JSON) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(j.bag()); err != nil {
		return nil, fmt.Errorf("encode json body: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (j *JSON) String() string { return render(j) }

// Form renders its content as application/x-www-form-urlencoded pairs joined
// by '&', nesting maps and slices with bracket notation.
type Form struct {
	Array
}

// NewForm returns a form body.
func NewForm(value any) (*Form, error) {
	f := &Form{Array: newArray("form")}
	if err := f.Set(value); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Form) Set(value any) error {
	f.variant = "form"
	return f.Array.Set(value)
}

func (f *Form) ContentType() string { return "application/x-www-form-urlencoded" }

func (f *Form) Clone() Repository { return &Form{Array: f.clone()} }

func (f *Form) Bytes() ([]byte, error) {
	var pairs []string
	for _, e := range f.Entries() {
		pairs = appendFormPairs(pairs, e.Key, e.Value)
	}
	return []byte(strings.Join(pairs, "&")), nil
}

func (f *Form) String() string { return render(f) }

func appendFormPairs(pairs []string, key string, value any) []string {
	switch v := value.(type) {
	case nil:
		return pairs
	case *bag.Bag[any]:
		for _, e := range v.Entries() {
			pairs = appendFormPairs(pairs, key+"["+e.Key+"]", e.Value)
		}
		return pairs
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = appendFormPairs(pairs, key+"["+k+"]", v[k])
		}
		return pairs
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = appendFormPairs(pairs, key+"["+k+"]", v[k])
		}
		return pairs
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if _, isBytes := value.([]byte); !isBytes {
			for i := 0; i < rv.Len(); i++ {
				pairs = appendFormPairs(pairs, key+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface())
			}
			return pairs
		}
	}

	return append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(formScalar(value)))
}

func formScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
