package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownScheme is returned when a name carries a scheme no store is
// registered for.
var ErrUnknownScheme = errors.New("blobstore: unknown scheme")

// Mux routes blob names to stores by locator scheme.
//
// A name like "mem://inputs/a" is routed to the store registered for "mem"
// with the name "inputs/a". Names without a scheme go to the fallback store.
type Mux struct {
	mu       sync.RWMutex
	stores   map[string]Store
	fallback Store
}

// NewMux creates a Mux. fallback handles scheme-less names and may be nil.
func NewMux(fallback Store) *Mux {
	return &Mux{
		stores:   make(map[string]Store),
		fallback: fallback,
	}
}

// Register routes names with the given scheme to store.
func (m *Mux) Register(scheme string, store Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[scheme] = store
}

func (m *Mux) resolve(name string) (Store, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := strings.Index(name, "://"); i >= 0 {
		scheme, rest := name[:i], name[i+3:]
		store, ok := m.stores[scheme]
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
		}
		return store, rest, nil
	}

	if m.fallback == nil {
		return nil, "", fmt.Errorf("%w: name %q has no scheme and no fallback is set", ErrUnknownScheme, name)
	}
	return m.fallback, name, nil
}

func (m *Mux) Open(ctx context.Context, name string) (Blob, error) {
	store, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, rest)
}

func (m *Mux) Create(ctx context.Context, name string) (WritableBlob, error) {
	store, rest, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return store.Create(ctx, rest)
}

func (m *Mux) Put(ctx context.Context, name string, data []byte) error {
	store, rest, err := m.resolve(name)
	if err != nil {
		return err
	}
	return store.Put(ctx, rest, data)
}

func (m *Mux) Delete(ctx context.Context, name string) error {
	store, rest, err := m.resolve(name)
	if err != nil {
		return err
	}
	return store.Delete(ctx, rest)
}

// List lists the fallback store when prefix has no scheme, or the scheme's
// store with the scheme re-attached to the returned names.
func (m *Mux) List(ctx context.Context, prefix string) ([]string, error) {
	if i := strings.Index(prefix, "://"); i >= 0 {
		scheme := prefix[:i]
		store, rest, err := m.resolve(prefix)
		if err != nil {
			return nil, err
		}
		names, err := store.List(ctx, rest)
		if err != nil {
			return nil, err
		}
		for j, n := range names {
			names[j] = scheme + "://" + n
		}
		return names, nil
	}

	store, rest, err := m.resolve(prefix)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, rest)
}
