package debounce

import (
	"sync/atomic"
	"time"
)

// Callback is a debounced handle whose target can be swapped. The handle
// keeps one timer for its whole life; the invocation that eventually fires
// runs whichever function was set last.
type Callback[A any] struct {
	fn atomic.Pointer[func(A)]
	d  *Debouncer[A]
}

func NewCallback[A any](delay time.Duration, fn func(A)) *Callback[A] {
	c := &Callback[A]{}
	c.fn.Store(&fn)
	c.d = New(delay, func(args A) {
		(*c.fn.Load())(args)
	})
	return c
}

// Set replaces the function run by future and already pending invocations.
func (c *Callback[A]) Set(fn func(A)) {
	c.fn.Store(&fn)
}

func (c *Callback[A]) Call(args A) { c.d.Call(args) }

func (c *Callback[A]) Flush() bool { return c.d.Flush() }

func (c *Callback[A]) Cancel() { c.d.Cancel() }

func (c *Callback[A]) Pending() bool { return c.d.Pending() }
