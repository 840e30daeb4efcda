package codec

import (
	"strings"
	"sync"
)

// DefaultMethodList is the request methods accepted out of the box.
var DefaultMethodList = []string{
	"GET", "HEAD", "POST", "PUT", "DELETE", "CONNECT", "OPTIONS", "TRACE", "PATCH",
}

// Methods is a concurrency-safe request method allow-list. Methods are
// stored upper-cased in insertion order.
type Methods struct {
	mu   sync.RWMutex
	list []string
	set  map[string]struct{}
}

// NewMethods returns an allow-list holding methods.
func NewMethods(methods ...string) *Methods {
	m := &Methods{set: make(map[string]struct{}, len(methods))}
	for _, method := range methods {
		m.Add(method)
	}
	return m
}

// DefaultMethods returns an allow-list holding DefaultMethodList.
func DefaultMethods() *Methods {
	return NewMethods(DefaultMethodList...)
}

// Add allows method. Adding a method twice is a no-op.
func (m *Methods) Add(method string) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.set[method]; ok {
		return
	}
	m.set[method] = struct{}{}
	m.list = append(m.list, method)
}

// Allowed reports whether the upper-case method is allowed.
func (m *Methods) Allowed(method string) bool {
	m.mu.RLock()
	_, ok := m.set[method]
	m.mu.RUnlock()
	return ok
}

// List returns a copy of the allowed methods.
func (m *Methods) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.list...)
}
