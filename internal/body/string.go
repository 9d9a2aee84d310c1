package body

import "fmt"

// Raw is a plain text body. It accepts strings, byte slices and fmt.Stringer values.
type Raw struct {
	value   string
	present bool
}

// NewRaw returns a raw body holding value.
func NewRaw(value any) (*Raw, error) {
	r := &Raw{}
	if err := r.Set(value); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Raw) Set(value any) error {
	switch v := value.(type) {
	case nil:
		r.value, r.present = "", false
	case string:
		r.value, r.present = v, true
	case []byte:
		r.value, r.present = string(v), true
	case fmt.Stringer:
		r.value, r.present = v.String(), true
	default:
		return &ValidationError{Variant: "raw", Value: value, Reason: "value must be a string"}
	}
	return nil
}

func (r *Raw) All() any {
	if !r.present {
		return nil
	}
	return r.value
}

func (r *Raw) IsEmpty() bool    { return r.value == "" }
func (r *Raw) IsNotEmpty() bool { return !r.IsEmpty() }

func (r *Raw) Bytes() ([]byte, error) {
	return []byte(r.value), nil
}

func (r *Raw) String() string { return r.value }

func (r *Raw) Clone() Repository {
	c := *r
	return &c
}

// XML is a raw body sent as application/xml.
type XML struct {
	Raw
}

// NewXML returns an XML body holding value.
func NewXML(value any) (*XML, error) {
	x := &XML{}
	if err := x.Set(value); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *XML) ContentType() string { return "application/xml" }

func (x *XML) Clone() Repository { return &XML{Raw: x.Raw} }
