package progress

import (
	"sync"
	"time"

	"github.com/krevetka/krevetka/pkg/clock"
)

// Toast holds one transient notice that clears itself after a fixed
// window. Showing a new value replaces the old one and restarts the
// window.
type Toast[T any] struct {
	clock    clock.Clock
	window   time.Duration
	onChange func()

	mu    sync.Mutex
	value T
	shown bool
	timer clock.Timer
	gen   uint64
}

func NewToast[T any](c clock.Clock, window time.Duration, onChange func()) *Toast[T] {
	return &Toast[T]{clock: c, window: window, onChange: onChange}
}

func (t *Toast[T]) Show(v T) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.value, t.shown = v, true
	t.timer = t.clock.AfterFunc(t.window, func() { t.expire(gen) })
	t.mu.Unlock()
	t.changed()
}

func (t *Toast[T]) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.shown {
		t.mu.Unlock()
		return
	}
	var zero T
	t.value, t.shown, t.timer = zero, false, nil
	t.mu.Unlock()
	t.changed()
}

// Current returns the visible value, if any.
func (t *Toast[T]) Current() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.shown
}

// Dismiss hides the toast early.
func (t *Toast[T]) Dismiss() {
	t.mu.Lock()
	was := t.shown
	t.clear()
	t.mu.Unlock()
	if was {
		t.changed()
	}
}

// Stop cancels any pending timer without notifying. Used on teardown.
func (t *Toast[T]) Stop() {
	t.mu.Lock()
	t.clear()
	t.mu.Unlock()
}

func (t *Toast[T]) clear() {
	if t.timer != nil {
		t.timer.Stop()
	}
	var zero T
	t.gen++
	t.value, t.shown, t.timer = zero, false, nil
}

func (t *Toast[T]) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}
