package tlv

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

// Unmarshaler is implemented by types that decode their own TLV value.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// FieldError reports a TLV that could not be stored in its field.
type FieldError struct {
	Field string
	Tag   string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("tlv: field %s (tag %s): %v", e.Field, e.Tag, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Unmarshal decodes data and stores it in the struct pointed to by target.
func Unmarshal(data []byte, target any) error {
	packets, err := Decode(data)
	if err != nil {
		return err
	}
	return UnmarshalPackets(packets, target)
}

// UnmarshalPackets stores already decoded TLVs in the struct pointed to by target.
// A tag seen several times is appended when its field is a slice of structs; otherwise
// the last occurrence wins.
func UnmarshalPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("tlv: target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()

	p := planFor(v.Type())

	var leftovers []bertlv.TLV
	for _, packet := range packets {
		f, ok := p.byTag[strings.ToUpper(packet.Tag)]
		if !ok {
			leftovers = append(leftovers, packet)
			continue
		}
		if err := store(packet, v.Field(f.index)); err != nil {
			return &FieldError{Field: f.name, Tag: f.tag, Err: err}
		}
	}

	if p.unknown >= 0 && len(leftovers) > 0 {
		v.Field(p.unknown).Set(reflect.ValueOf(leftovers))
	}
	return nil
}

type field struct {
	index  int
	name   string
	tag    string // upper-case hex
	render string // ascii, int or empty
}

type plan struct {
	fields  []field
	byTag   map[string]field
	unknown int // index of the unknown sink, -1 when absent
}

var plans sync.Map // reflect.Type -> *plan

var tlvSliceType = reflect.TypeOf([]bertlv.TLV(nil))

func planFor(t reflect.Type) *plan {
	if p, ok := plans.Load(t); ok {
		return p.(*plan)
	}

	p := &plan{byTag: make(map[string]field), unknown: -1}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		tag, opt, _ := strings.Cut(sf.Tag.Get("tlv"), ",")
		if opt == "unknown" || (tag == "" && sf.Type == tlvSliceType) {
			p.unknown = i
			continue
		}

		f := field{index: i, name: sf.Name, tag: strings.ToUpper(tag), render: opt}
		p.fields = append(p.fields, f)
		if f.tag != "" {
			p.byTag[f.tag] = f
		}
	}

	actual, _ := plans.LoadOrStore(t, p)
	return actual.(*plan)
}

func store(packet bertlv.TLV, dst reflect.Value) error {
	if dst.CanAddr() {
		if u, ok := dst.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(raw(packet))
		}
	}

	switch {
	case dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8:
		dst.SetBytes(raw(packet))

	case dst.Kind() == reflect.Slice:
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := store(packet, elem); err != nil {
			return err
		}
		dst.Set(reflect.Append(dst, elem))

	case dst.Kind() == reflect.String:
		dst.SetString(codec.Encode(packet.Value))

	case dst.CanUint():
		n, ok := Uint(packet.Value)
		if !ok || dst.OverflowUint(n) {
			return fmt.Errorf("value %X does not fit %s", packet.Value, dst.Type())
		}
		dst.SetUint(n)

	case dst.CanInt():
		n, ok := Uint(packet.Value)
		if !ok || n > 1<<62 || dst.OverflowInt(int64(n)) {
			return fmt.Errorf("value %X does not fit %s", packet.Value, dst.Type())
		}
		dst.SetInt(int64(n))

	case dst.Kind() == reflect.Struct:
		return nested(packet, dst.Addr().Interface())

	case dst.Kind() == reflect.Ptr && dst.Type().Elem().Kind() == reflect.Struct:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return nested(packet, dst.Interface())
	}
	return nil
}

func nested(packet bertlv.TLV, target any) error {
	if len(packet.TLVs) > 0 {
		return UnmarshalPackets(packet.TLVs, target)
	}
	return Unmarshal(packet.Value, target)
}
