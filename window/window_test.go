package window

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
)

func TestWindowEvents(t *testing.T) {
	w := &Window{}
	w.open.Store(true)

	w.handleEvent(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED, Data1: 1024, Data2: 512})
	if !w.Resized() {
		t.Fatal("resize not reported")
	}
	if w.Resized() {
		t.Error("resize reported twice")
	}
	if width, height := w.Size(); width != 1024 || height != 512 {
		t.Errorf("size %dx%d", width, height)
	}
	if w.Aspect() != 2 {
		t.Errorf("aspect %v", w.Aspect())
	}

	w.handleEvent(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED})
	if !w.Minimized() {
		t.Error("minimize not tracked")
	}
	w.handleEvent(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED})
	if w.Minimized() || !w.Resized() {
		t.Error("restore should clear minimized and request a rebuild")
	}

	w.handleEvent(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_SIZE_CHANGED})
	if !w.Minimized() || w.Aspect() != 1 {
		t.Error("zero size should count as minimized")
	}

	w.handleEvent(&sdl.QuitEvent{})
	if w.IsOpen() {
		t.Error("window open after quit")
	}
}

func TestKeyHandlers(t *testing.T) {
	w := &Window{}
	var got []string
	first := w.OnKey(sdl.K_ESCAPE, func(e KeyEvent) {
		if e.Pressed {
			got = append(got, "first")
		}
	})
	w.OnKey(sdl.K_ESCAPE, func(e KeyEvent) {
		if e.Pressed {
			got = append(got, "second")
		}
	})
	w.OnKey(sdl.K_SPACE, func(KeyEvent) { got = append(got, "space") })

	press := &sdl.KeyboardEvent{State: sdl.PRESSED, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}}
	w.handleEvent(press)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("dispatch order %v", got)
	}

	got = nil
	w.RemoveKeyHandler(first)
	w.RemoveKeyHandler(first)
	w.handleEvent(press)
	w.handleEvent(&sdl.KeyboardEvent{State: sdl.RELEASED, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}})
	if len(got) != 1 || got[0] != "second" {
		t.Errorf("after remove %v", got)
	}
}

func TestKeyHandlerRemovesItself(t *testing.T) {
	w := &Window{}
	calls := 0
	var h KeyHandle
	h = w.OnKey(sdl.K_q, func(KeyEvent) {
		calls++
		w.RemoveKeyHandler(h)
	})
	ev := &sdl.KeyboardEvent{State: sdl.PRESSED, Keysym: sdl.Keysym{Sym: sdl.K_q}}
	w.handleEvent(ev)
	w.handleEvent(ev)
	if calls != 1 {
		t.Errorf("handler ran %d times", calls)
	}
}

func TestSDLUsersReinitAfterLastRelease(t *testing.T) {
	var inits, quits int
	u := &sdlUsers{
		init: func() error { inits++; return nil },
		quit: func() { quits++ },
	}

	// Open, close, open again.
	if err := u.acquire(); err != nil {
		t.Fatal(err)
	}
	u.release()
	if inits != 1 || quits != 1 {
		t.Fatalf("after first close: %d inits, %d quits", inits, quits)
	}
	if err := u.acquire(); err != nil {
		t.Fatal(err)
	}
	if inits != 2 {
		t.Errorf("second open did not reinitialise: %d inits", inits)
	}

	// A second window keeps SDL alive until both are closed.
	if err := u.acquire(); err != nil {
		t.Fatal(err)
	}
	u.release()
	if quits != 1 {
		t.Error("quit while a window is still open")
	}
	u.release()
	if quits != 2 || inits != 2 {
		t.Errorf("after last close: %d inits, %d quits", inits, quits)
	}

	u.release()
	if quits != 2 {
		t.Error("release with no windows open called quit")
	}
}

func TestSDLUsersInitFailure(t *testing.T) {
	errNoVideo := errors.New("no video device")
	fail := true
	var quits int
	u := &sdlUsers{
		init: func() error {
			if fail {
				return errNoVideo
			}
			return nil
		},
		quit: func() { quits++ },
	}

	if err := u.acquire(); !errors.Is(err, errNoVideo) {
		t.Fatalf("got %v", err)
	}
	if u.count != 0 {
		t.Errorf("failed init counted as a user")
	}

	fail = false
	if err := u.acquire(); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	u.release()
	if quits != 1 {
		t.Errorf("%d quits", quits)
	}
}

func TestNewRejectsBadSizeWithoutInit(t *testing.T) {
	if _, err := New(Settings{Width: 0, Height: 600}); err == nil {
		t.Fatal("zero width accepted")
	}
	if video.count != 0 {
		t.Errorf("%d sdl users after rejected window", video.count)
	}
}
