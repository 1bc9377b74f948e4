package window

import (
	"sync"

	"github.com/veandco/go-sdl2/sdl"
)

type KeyEvent struct {
	Key     sdl.Keycode
	Pressed bool
	Repeat  bool
}

// KeyHandle identifies a registered key handler.
type KeyHandle uint64

type keyHandler struct {
	handle KeyHandle
	fn     func(KeyEvent)
}

type keyHandlers struct {
	mu     sync.Mutex
	next   KeyHandle
	byKey  map[sdl.Keycode][]keyHandler
	keyFor map[KeyHandle]sdl.Keycode
}

func (k *keyHandlers) add(key sdl.Keycode, fn func(KeyEvent)) KeyHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.byKey == nil {
		k.byKey = map[sdl.Keycode][]keyHandler{}
		k.keyFor = map[KeyHandle]sdl.Keycode{}
	}
	k.next++
	k.byKey[key] = append(k.byKey[key], keyHandler{handle: k.next, fn: fn})
	k.keyFor[k.next] = key
	return k.next
}

func (k *keyHandlers) remove(h KeyHandle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keyFor[h]
	if !ok {
		return
	}
	delete(k.keyFor, h)
	handlers := k.byKey[key]
	for i, kh := range handlers {
		if kh.handle == h {
			k.byKey[key] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(k.byKey[key]) == 0 {
		delete(k.byKey, key)
	}
}

// dispatch calls handlers in registration order. Handlers may add or remove
// handlers; changes apply from the next event.
func (k *keyHandlers) dispatch(e KeyEvent) {
	k.mu.Lock()
	handlers := k.byKey[e.Key]
	k.mu.Unlock()
	for _, h := range handlers {
		h.fn(e)
	}
}
