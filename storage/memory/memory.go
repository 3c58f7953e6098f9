// Package memory is an in-process storage.Store. Write transactions stage their writes and
// apply them under the store's lock only when the transaction function succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/autom8ter/pathfinder/storage"
)

type store struct {
	mu        sync.RWMutex
	data      map[string][]byte
	closed    bool
	closeOnce sync.Once
}

// New returns an empty in-memory store.
func New() storage.Store {
	return &store{
		data: map[string][]byte{},
	}
}

func (s *store) View(ctx context.Context, fn func(r storage.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return fn(&txn{store: s})
}

func (s *store) Update(ctx context.Context, fn func(w storage.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	t := &txn{store: s, staged: map[string][]byte{}}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range t.staged {
		s.data[k] = v
	}
	return nil
}

func (s *store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		s.data = map[string][]byte{}
	})
	return nil
}

// Keys returns every committed key in sorted order. It is intended for debugging and tests.
func Keys(st storage.Store) []string {
	s, ok := st.(*store)
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type txn struct {
	store  *store
	staged map[string][]byte
}

func (t *txn) Get(key []byte) ([]byte, error) {
	if t.staged != nil {
		if v, ok := t.staged[string(key)]; ok {
			return copyBytes(v), nil
		}
	}
	v, ok := t.store.data[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyBytes(v), nil
}

func (t *txn) Set(key, value []byte) error {
	if t.staged == nil {
		return storage.ErrReadOnly
	}
	t.staged[string(key)] = copyBytes(value)
	return nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
