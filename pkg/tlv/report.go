package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Fields renders the populated byte fields and the unknown TLVs of the struct s, one line
// per value, in declaration order. s may be a struct or a pointer to one; nil yields no lines.
func Fields(prefix string, s any) []string {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	p := planFor(v.Type())

	var lines []string
	for _, f := range p.fields {
		fv := v.Field(f.index)
		if fv.Kind() != reflect.Slice || fv.Type().Elem().Kind() != reflect.Uint8 || fv.Len() == 0 {
			continue
		}

		name := f.name
		if f.tag != "" {
			name = fmt.Sprintf("%s (%s)", f.name, f.tag)
		}
		lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, name, render(fv.Bytes(), f.render)))
	}

	if p.unknown >= 0 {
		unknown, _ := v.Field(p.unknown).Interface().([]bertlv.TLV)
		for _, t := range unknown {
			lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %X", prefix, strings.ToUpper(t.Tag), raw(t)))
		}
	}
	return lines
}

// Printable replaces every byte outside the printable ASCII range with a dot.
func Printable(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b < 0x20 || b > 0x7E {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}

func render(data []byte, how string) string {
	switch how {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, Printable(data))
	case "int":
		if n, ok := Uint(data); ok {
			return fmt.Sprintf("%X (Dec: %d)", data, n)
		}
	}
	return fmt.Sprintf("%X", data)
}
