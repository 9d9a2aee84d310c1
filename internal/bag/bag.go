// Package bag provides the ordered key/value stores used for request headers,
// query parameters and configuration.
package bag

import (
	"bytes"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is a single key/value pair as it was last written.
type Entry[V any] struct {
	Key   string
	Value V
}

// Bag is an ordered mapping with unique keys. Writing an existing key keeps
// its position and replaces both the stored spelling and the value, so the
// last write always wins.
//
// A Bag is not safe for concurrent mutation.
type Bag[V any] struct {
	caseInsensitive bool
	entries         *orderedmap.OrderedMap[string, Entry[V]]
}

// New returns an empty case-sensitive bag.
func New[V any]() *Bag[V] {
	return &Bag[V]{entries: orderedmap.New[string, Entry[V]]()}
}

// NewHeaders returns an empty bag whose keys compare case-insensitively, so
// Content-Type and content-type collide.
func NewHeaders() *Bag[string] {
	b := New[string]()
	b.caseInsensitive = true
	return b
}

// FromMap builds a case-sensitive bag from m. Map iteration order is random
// so keys are inserted in sorted order.
func FromMap[V any](m map[string]V) *Bag[V] {
	b := New[V]()
	b.AddMap(m)
	return b
}

// CaseInsensitive reports whether keys are compared case-insensitively.
func (b *Bag[V]) CaseInsensitive() bool {
	return b.caseInsensitive
}

func (b *Bag[V]) normalize(key string) string {
	if b.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

func (b *Bag[V]) lazy() {
	if b.entries == nil {
		b.entries = orderedmap.New[string, Entry[V]]()
	}
}

// Set replaces the whole content of the bag with m.
func (b *Bag[V]) Set(m map[string]V) *Bag[V] {
	b.entries = orderedmap.New[string, Entry[V]]()
	return b.AddMap(m)
}

// Add writes a single value.
func (b *Bag[V]) Add(key string, value V) *Bag[V] {
	b.lazy()
	b.entries.Set(b.normalize(key), Entry[V]{Key: key, Value: value})
	return b
}

// AddMap writes every value of m in sorted key order.
func (b *Bag[V]) AddMap(m map[string]V) *Bag[V] {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Add(k, m[k])
	}
	return b
}

// Merge writes the entries of each other bag, in order, on top of b.
func (b *Bag[V]) Merge(others ...*Bag[V]) *Bag[V] {
	for _, other := range others {
		if other == nil {
			continue
		}
		for _, e := range other.Entries() {
			b.Add(e.Key, e.Value)
		}
	}
	return b
}

// Remove deletes key if present.
func (b *Bag[V]) Remove(key string) *Bag[V] {
	if b.entries != nil {
		b.entries.Delete(b.normalize(key))
	}
	return b
}

// Get returns the value stored for key.
func (b *Bag[V]) Get(key string) (V, bool) {
	var zero V
	if b == nil || b.entries == nil {
		return zero, false
	}
	e, ok := b.entries.Get(b.normalize(key))
	if !ok {
		return zero, false
	}
	return e.Value, true
}

// Value returns the value stored for key or the zero value.
func (b *Bag[V]) Value(key string) V {
	v, _ := b.Get(key)
	return v
}

// Has reports whether key is present.
func (b *Bag[V]) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Entries returns a copy of the entries in insertion order.
func (b *Bag[V]) Entries() []Entry[V] {
	if b == nil || b.entries == nil {
		return nil
	}
	out := make([]Entry[V], 0, b.entries.Len())
	for pair := b.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Keys returns the stored key spellings in insertion order.
func (b *Bag[V]) Keys() []string {
	entries := b.Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// All returns the content as a plain map. Order is lost; use Entries when it matters.
func (b *Bag[V]) All() map[string]V {
	entries := b.Entries()
	out := make(map[string]V, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out
}

// Len returns the number of entries.
func (b *Bag[V]) Len() int {
	if b == nil || b.entries == nil {
		return 0
	}
	return b.entries.Len()
}

// IsEmpty reports whether the bag has no entries.
func (b *Bag[V]) IsEmpty() bool {
	return b.Len() == 0
}

// IsNotEmpty reports whether the bag has at least one entry.
func (b *Bag[V]) IsNotEmpty() bool {
	return !b.IsEmpty()
}

// Clone returns an independent copy with the same key semantics. Values are
// copied shallowly.
func (b *Bag[V]) Clone() *Bag[V] {
	out := New[V]()
	if b == nil {
		return out
	}
	out.caseInsensitive = b.caseInsensitive
	return out.Merge(b)
}

// MarshalJSON renders the bag as a JSON object in insertion order.
func (b *Bag[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range b.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalValue(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalValue(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the content with the members of a JSON object,
// keeping their document order.
func (b *Bag[V]) UnmarshalJSON(data []byte) error {
	om := orderedmap.New[string, V]()
	if err := om.UnmarshalJSON(data); err != nil {
		return err
	}
	b.entries = orderedmap.New[string, Entry[V]]()
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		b.Add(pair.Key, pair.Value)
	}
	return nil
}

func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
