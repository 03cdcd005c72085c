package task

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestHandle() (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return NewHandle(cancel), ctx
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	h1, _ := newTestHandle()
	h2, _ := newTestHandle()

	if !r.Register("s1", h1) {
		t.Fatal("first Register returned false")
	}
	if r.Register("s1", h2) {
		t.Fatal("second Register for same id returned true")
	}
	if got, ok := r.Get("s1"); !ok || got != h1 {
		t.Fatalf("Get returned %v, %v; want original handle", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestCancelSignalsContext(t *testing.T) {
	r := NewRegistry()
	h, ctx := newTestHandle()
	r.Register("s1", h)

	if !r.Cancel("s1") {
		t.Fatal("Cancel returned false for registered id")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}

	// Cancel unregisters. A repeat call is a no-op.
	if _, ok := r.Get("s1"); ok {
		t.Fatal("handle still registered after Cancel")
	}
	if r.Cancel("s1") {
		t.Fatal("second Cancel returned true")
	}
	if r.Cancel("missing") {
		t.Fatal("Cancel returned true for unknown id")
	}
}

func TestRemoveIsCompareAndDelete(t *testing.T) {
	r := NewRegistry()
	h1, _ := newTestHandle()
	r.Register("s1", h1)
	r.Remove("s1", h1)
	if _, ok := r.Get("s1"); ok {
		t.Fatal("handle still registered after Remove")
	}

	// A stale handle must not unregister the current one.
	h2, _ := newTestHandle()
	r.Register("s1", h2)
	r.Remove("s1", h1)
	if got, ok := r.Get("s1"); !ok || got != h2 {
		t.Fatal("stale Remove displaced the current handle")
	}
}

func TestHandleDone(t *testing.T) {
	h, _ := newTestHandle()

	select {
	case <-h.Done():
		t.Fatal("Done closed before Finish")
	default:
	}

	h.Finish()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Finish")
	}
}

func TestCancelAll(t *testing.T) {
	r := NewRegistry()
	var ctxs []context.Context
	for _, id := range []string{"a", "b", "c"} {
		h, ctx := newTestHandle()
		r.Register(id, h)
		ctxs = append(ctxs, ctx)
	}

	handles := r.CancelAll()
	if len(handles) != 3 {
		t.Fatalf("CancelAll returned %d handles, want 3", len(handles))
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d after CancelAll, want 0", r.Len())
	}
	for i, ctx := range ctxs {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatalf("context %d not cancelled", i)
		}
	}
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	wins := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, _ := newTestHandle()
			wins <- r.Register("s1", h)
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d goroutines won Register, want exactly 1", winners)
	}
}
