package codec

import (
	"sync"
	"sync/atomic"

	"github.com/albertbausili/streamhttp/internal/message"
)

// Context is the per-connection parse state.
type Context struct {
	Phase Phase
	// Request is nil until the request line has been decoded.
	Request *message.Request
	// ShouldClose is decided once headers are parsed and consulted by Encode.
	ShouldClose bool

	// closeIntent records a "Connection: close" header seen by the headers
	// handler; the driver combines it with the protocol version.
	closeIntent bool
}

// Store maps connection ids to their Context. It holds ids, never the
// connections themselves, so it cannot keep a connection alive.
type Store struct {
	contexts sync.Map // map[uint64]*Context
	size     atomic.Int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// GetOrCreate returns the context for id, creating it in the request-line
// phase when absent.
func (s *Store) GetOrCreate(id uint64) *Context {
	if v, ok := s.contexts.Load(id); ok {
		return v.(*Context)
	}
	v, loaded := s.contexts.LoadOrStore(id, &Context{})
	if !loaded {
		s.size.Add(1)
	}
	return v.(*Context)
}

// Lookup returns the context for id without creating one.
func (s *Store) Lookup(id uint64) (*Context, bool) {
	v, ok := s.contexts.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Context), true
}

// Remove drops the context for id. Removing an absent id is a no-op.
func (s *Store) Remove(id uint64) {
	if _, ok := s.contexts.LoadAndDelete(id); ok {
		s.size.Add(-1)
	}
}

// Len returns the number of live contexts.
func (s *Store) Len() int {
	return int(s.size.Load())
}
