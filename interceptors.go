package apireq

import (
	"context"
	"sync"
)

// RequestInterceptor may rewrite or reject a request before it reaches the
// executor. It runs after the client's own request hooks.
type RequestInterceptor func(ctx context.Context, req *Request) (*Request, error)

// ResponseInterceptor observes the outcome of an attempt, cache hits
// included, and may replace it. It runs after the client's own response
// hooks.
type ResponseInterceptor func(resp *Response, err error) (*Response, error)

// InterceptorManager holds user interceptors in registration order.
type InterceptorManager[H any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers []interceptor[H]
}

type interceptor[H any] struct {
	id int
	fn H
}

// Use registers h and returns an id for Eject.
func (m *InterceptorManager[H]) Use(h H) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.handlers = append(m.handlers, interceptor[H]{id: id, fn: h})
	return id
}

// Eject removes the interceptor registered under id.
func (m *InterceptorManager[H]) Eject(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.handlers {
		if h.id == id {
			m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
			return
		}
	}
}

// Clear removes every user interceptor. The client's own hooks are not
// affected.
func (m *InterceptorManager[H]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = nil
}

// Len reports the number of registered interceptors.
func (m *InterceptorManager[H]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

func (m *InterceptorManager[H]) snapshot() []H {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]H, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.fn
	}
	return out
}
