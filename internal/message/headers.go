// Package message provides the HTTP/1.1 request and response values the codec
// builds and serializes.
package message

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Field is one header name with every value received for it, in order.
type Field struct {
	Name   string
	Values []string
}

// Headers is an ordered header multimap. Names keep the spelling they were
// first added with and are compared case-insensitively.
type Headers struct {
	fields []Field
}

// NewHeaders builds Headers from name/value pairs, appending repeated names.
func NewHeaders(pairs ...[2]string) Headers {
	var h Headers
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
	return h
}

func (h *Headers) index(name string) int {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			return i
		}
	}
	return -1
}

// Add appends value to the values of name.
func (h *Headers) Add(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i].Values = append(h.fields[i].Values, value)
		return
	}
	h.fields = append(h.fields, Field{Name: name, Values: []string{value}})
}

// Set replaces every value of name with value.
func (h *Headers) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i] = Field{Name: h.fields[i].Name, Values: []string{value}}
		return
	}
	h.fields = append(h.fields, Field{Name: name, Values: []string{value}})
}

// Get returns the first value of name, or "".
func (h Headers) Get(name string) string {
	if i := h.index(name); i >= 0 && len(h.fields[i].Values) > 0 {
		return h.fields[i].Values[0]
	}
	return ""
}

// Values returns every value of name.
func (h Headers) Values(name string) []string {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Values
	}
	return nil
}

// Line returns the values of name joined with ", ".
func (h Headers) Line(name string) string {
	return strings.Join(h.Values(name), ", ")
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	return h.index(name) >= 0
}

// Del removes name.
func (h *Headers) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Len returns the number of distinct names.
func (h Headers) Len() int {
	return len(h.fields)
}

// Fields returns the fields in insertion order. The slice must not be modified.
func (h Headers) Fields() []Field {
	return h.fields
}

// Names returns every distinct header name in insertion order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		names = append(names, f.Name)
	}
	return names
}

// Clone returns a deep copy so mutations never leak between values.
func (h Headers) Clone() Headers {
	if h.fields == nil {
		return Headers{}
	}
	fields := make([]Field, len(h.fields))
	for i, f := range h.fields {
		fields[i] = Field{Name: f.Name, Values: append([]string(nil), f.Values...)}
	}
	return Headers{fields: fields}
}

// ValidName reports whether name is a legal HTTP header field name.
func ValidName(name string) bool {
	return httpguts.ValidHeaderFieldName(name)
}
