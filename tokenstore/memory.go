package tokenstore

import (
	"context"
	"sync"
)

// MemoryProvider is an in-memory Provider. Namespaces are created on first use.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]map[Kind]string // namespace -> kind -> value
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		values: make(map[string]map[Kind]string),
	}
}

// NewMemoryStore returns a standalone in-memory store.
func NewMemoryStore() Store {
	return NewMemoryProvider().For("default")
}

func (p *MemoryProvider) For(namespace string) Store {
	return &memoryStore{provider: p, namespace: namespace}
}

// Namespaces returns how many namespaces currently hold values.
func (p *MemoryProvider) Namespaces() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

type memoryStore struct {
	provider  *MemoryProvider
	namespace string
}

func (s *memoryStore) Get(_ context.Context, kind Kind) (string, error) {
	s.provider.mu.RLock()
	defer s.provider.mu.RUnlock()

	v, ok := s.provider.values[s.namespace][kind]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, kind Kind, value string) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()

	if _, ok := s.provider.values[s.namespace]; !ok {
		s.provider.values[s.namespace] = make(map[Kind]string)
	}
	s.provider.values[s.namespace][kind] = value
	return nil
}

func (s *memoryStore) Clear(_ context.Context, kinds ...Kind) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()

	ns, ok := s.provider.values[s.namespace]
	if !ok {
		return nil // Already doesn't exist, no error
	}
	for _, k := range kinds {
		delete(ns, k)
	}

	// Clean up empty namespace map
	if len(ns) == 0 {
		delete(s.provider.values, s.namespace)
	}
	return nil
}
