package vkng

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver"
)

// table maps handles of one type to the API objects behind them. Handles
// start at 1 and are never reused, so a stale handle never aliases a newer
// object.
type table[H ~uint64, T any] struct {
	kind string

	mu      sync.RWMutex
	next    uint64
	objects map[H]T
}

func newTable[H ~uint64, T any](kind string) *table[H, T] {
	return &table[H, T]{kind: kind, objects: map[H]T{}}
}

func (t *table[H, T]) add(v T) H {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := H(t.next)
	t.objects[h] = v
	return h
}

func (t *table[H, T]) get(h H) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.objects[h]
	if !ok {
		return v, errors.Wrapf(driver.ErrUnknownHandle, "%s %d", t.kind, uint64(h))
	}
	return v, nil
}

// lookup is get for callers that cannot report an error. Unknown handles
// yield the zero object.
func (t *table[H, T]) lookup(h H) T {
	v, _ := t.get(h)
	return v
}

func (t *table[H, T]) all(hs []H) ([]T, error) {
	out := make([]T, len(hs))
	for i, h := range hs {
		v, err := t.get(h)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *table[H, T]) remove(h H) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objects[h]
	delete(t.objects, h)
	return v, ok
}

func (t *table[H, T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

// drain removes and returns every object.
func (t *table[H, T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.objects))
	for h, v := range t.objects {
		out = append(out, v)
		delete(t.objects, h)
	}
	return out
}
