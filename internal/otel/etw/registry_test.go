package etw

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/mock/gomock"
)

// provider names are claimed process-wide, so tests use their own name to avoid collisions

func testProviderName(t *testing.T) string {
	t.Helper()
	return "Microsoft.OTel.Test." + strings.ReplaceAll(t.Name(), "/", ".")
}

func TestRegisterUnregister(t *testing.T) {
	rec := NewRecorder()
	r := NewRegistry(rec)
	name := testProviderName(t)

	h, err := r.Register(name)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if h.Name() != name {
		t.Fatalf("got name %q, wanted %q", h.Name(), name)
	}
	if h.ID() != ProviderID(name) {
		t.Fatalf("got ID %v, wanted %v", h.ID(), ProviderID(name))
	}
	if rec.Active() != 1 {
		t.Fatalf("got %d active providers, wanted 1", rec.Active())
	}

	if err := r.Unregister(h); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if !h.Released() {
		t.Fatalf("handle not released after unregister")
	}
	if rec.Active() != 0 || rec.Closed() != 1 {
		t.Fatalf("got %d active and %d closed providers, wanted 0 and 1", rec.Active(), rec.Closed())
	}

	if err := r.Unregister(h); !errors.Is(err, ErrClosed) {
		t.Fatalf("got second unregister error %v, wanted %v", err, ErrClosed)
	}
	if rec.Closed() != 1 {
		t.Fatalf("provider closed %d times, wanted 1", rec.Closed())
	}

	// the name can be reused once released
	r2 := NewRegistry(rec)
	h2, err := r2.Register(name)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err := r2.Unregister(h2); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}

func TestRegisterTwice(t *testing.T) {
	r := NewRegistry(NewRecorder())
	name := testProviderName(t)

	h, err := r.Register(name)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { _ = r.Unregister(h) })

	_, err = r.Register(name + ".Other")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("got error %v, wanted %v", err, ErrAlreadyRegistered)
	}
}

func TestRegisterNameCollision(t *testing.T) {
	rec := NewRecorder()
	name := testProviderName(t)

	r1 := NewRegistry(rec)
	h, err := r1.Register(name)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { _ = r1.Unregister(h) })

	// names are case-insensitive
	_, err = NewRegistry(rec).Register(strings.ToLower(name))
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("got error %v, wanted %v", err, ErrNameCollision)
	}
	var rerr *RegistrationError
	if !errors.As(err, &rerr) {
		t.Fatalf("got error %T, wanted %T", err, rerr)
	}
	if rec.Active() != 1 {
		t.Fatalf("got %d active providers, wanted 1", rec.Active())
	}
}

func TestRegisterInvalidName(t *testing.T) {
	for _, tc := range []struct {
		name     string
		provider string
	}{
		{name: "empty", provider: ""},
		{name: "null", provider: "Microsoft.OTel\x00Test"},
		{name: "long", provider: strings.Repeat("a", maxProviderNameLength+1)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// native must not be called
			n := NewMockNative(ctrl)

			_, err := NewRegistry(n).Register(tc.provider)
			if !errors.Is(err, ErrInvalidProviderName) {
				t.Fatalf("got error %v, wanted %v", err, ErrInvalidProviderName)
			}
		})
	}
}

func TestRegisterNativeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	name := testProviderName(t)
	errDenied := errors.New("access denied")

	n := NewMockNative(ctrl)
	n.EXPECT().Register(name).Return(nil, errDenied)

	_, err := NewRegistry(n).Register(name)
	var rerr *RegistrationError
	if !errors.As(err, &rerr) {
		t.Fatalf("got error %v, wanted %T", err, rerr)
	}
	if rerr.Name != name {
		t.Fatalf("got error name %q, wanted %q", rerr.Name, name)
	}
	if !errors.Is(err, errDenied) {
		t.Fatalf("got error %v, wanted %v", err, errDenied)
	}

	// the failed registration must not claim the name
	rec := NewRecorder()
	r := NewRegistry(rec)
	h, err := r.Register(name)
	if err != nil {
		t.Fatalf("register after failure: %v", err)
	}
	if err := r.Unregister(h); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}

func TestUnregisterForeignHandle(t *testing.T) {
	rec := NewRecorder()
	r := NewRegistry(rec)
	h, err := r.Register(testProviderName(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { _ = r.Unregister(h) })

	if err := NewRegistry(rec).Unregister(h); err == nil {
		t.Fatalf("unregistered handle from another registry")
	}
	if h.Released() {
		t.Fatalf("handle released by another registry")
	}
	if err := NewRegistry(rec).Unregister(nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("got error %v, wanted %v", err, ErrClosed)
	}
}

func TestUnregisterCloseFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	name := testProviderName(t)
	errClose := errors.New("close failed")

	s := NewMockSession(ctrl)
	s.EXPECT().Close().Return(errClose).Times(1)
	n := NewMockNative(ctrl)
	n.EXPECT().Register(name).Return(s, nil)

	r := NewRegistry(n)
	h, err := r.Register(name)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Unregister(h); !errors.Is(err, errClose) {
		t.Fatalf("got error %v, wanted %v", err, errClose)
	}
	// the handle is released regardless
	if !h.Released() {
		t.Fatalf("handle not released after failed close")
	}
	if err := r.Unregister(h); !errors.Is(err, ErrClosed) {
		t.Fatalf("got error %v, wanted %v", err, ErrClosed)
	}
}

func TestHandleWrite(t *testing.T) {
	rec := NewRecorder()
	r := NewRegistry(rec)
	name := testProviderName(t)
	h, err := r.Register(name)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	d := Descriptor{Level: LevelInfo, Keyword: KeywordSpan}
	ev := &Event{PartB: PartB{Name: "op"}}
	if err := h.Write(d, ev); err != nil {
		t.Fatalf("write: %v", err)
	}

	evs := rec.Events()
	if len(evs) != 1 {
		t.Fatalf("got %d events, wanted 1", len(evs))
	}
	if evs[0].Provider != name || evs[0].Descriptor != d || evs[0].Event != ev {
		t.Fatalf("got event %+v, wanted provider %q with %+v", evs[0], name, d)
	}

	if err := r.Unregister(h); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := h.Write(d, ev); !errors.Is(err, ErrClosed) {
		t.Fatalf("got write error %v, wanted %v", err, ErrClosed)
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("event recorded after release")
	}
}

func TestHandleWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	name := testProviderName(t)
	errWrite := errors.New("no buffers")

	s := NewMockSession(ctrl)
	s.EXPECT().Write(gomock.Any(), gomock.Any()).Return(errWrite)
	s.EXPECT().Close().Return(nil)
	n := NewMockNative(ctrl)
	n.EXPECT().Register(name).Return(s, nil)

	r := NewRegistry(n)
	h, err := r.Register(name)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { _ = r.Unregister(h) })

	err = h.Write(Descriptor{}, &Event{})
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("got error %v, wanted %T", err, werr)
	}
	if werr.Provider != name || !errors.Is(err, errWrite) {
		t.Fatalf("got error %v, wanted write error for %q wrapping %v", err, name, errWrite)
	}
}

func TestHandleWriteStatus(t *testing.T) {
	rec := NewRecorder()
	rec.FailWrites(func(ev *Event) uint32 {
		if ev.PartB.Name == "bad" {
			return 0x8
		}
		return 0
	})
	r := NewRegistry(rec)
	h, err := r.Register(testProviderName(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { _ = r.Unregister(h) })

	err = h.Write(Descriptor{}, &Event{PartB: PartB{Name: "bad"}})
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("got error %v, wanted %T", err, werr)
	}
	if werr.StatusCode() != 0x8 {
		t.Fatalf("got status 0x%x, wanted 0x8", werr.StatusCode())
	}
	if err := h.Write(Descriptor{}, &Event{PartB: PartB{Name: "good"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if n := len(rec.Events()); n != 1 {
		t.Fatalf("got %d events, wanted 1", n)
	}
}

func TestHandleIsEnabled(t *testing.T) {
	rec := NewRecorder()
	rec.SetEnabled(func(l Level, _ uint64) bool { return l <= LevelError })

	r := NewRegistry(rec)
	h, err := r.Register(testProviderName(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if h.IsEnabled(LevelInfo, KeywordSpan) {
		t.Fatalf("info level enabled")
	}
	if !h.IsEnabled(LevelError, KeywordSpan) {
		t.Fatalf("error level disabled")
	}

	if err := r.Unregister(h); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	// unknown once released
	if !h.IsEnabled(LevelInfo, KeywordSpan) {
		t.Fatalf("released handle reported disabled")
	}
}

func TestHandleIsEnabledTestMode(t *testing.T) {
	rec := NewRecorder()
	rec.SetEnabled(func(Level, uint64) bool { return false })

	r := NewRegistry(rec, WithTestMode())
	h, err := r.Register(testProviderName(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { _ = r.Unregister(h) })

	if !h.IsEnabled(LevelVerbose, KeywordSpan) {
		t.Fatalf("test mode handle reported disabled")
	}
}

func TestUnregisterConcurrentWrites(t *testing.T) {
	rec := NewRecorder()
	r := NewRegistry(rec)
	h, err := r.Register(testProviderName(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := h.Write(Descriptor{}, &Event{}); err != nil && !errors.Is(err, ErrClosed) {
					t.Errorf("write: %v", err)
					return
				}
			}
		}()
	}
	if err := r.Unregister(h); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	wg.Wait()

	if rec.Closed() != 1 {
		t.Fatalf("provider closed %d times, wanted 1", rec.Closed())
	}
}

func TestParseLevel(t *testing.T) {
	for l := LevelAlways; l <= LevelVerbose; l++ {
		got, err := ParseLevel(l.String())
		if err != nil {
			t.Fatalf("parse %q: %v", l, err)
		}
		if got != l {
			t.Fatalf("got %v, wanted %v", got, l)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("parsed unknown level")
	}
}
