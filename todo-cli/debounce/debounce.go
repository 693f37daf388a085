// Package debounce coalesces bursts of calls into a single trailing call.
//
// A Debouncer owns one pending timer. Every Call cancels the pending
// invocation, if it has not fired yet, and schedules a new one delay after
// that Call. The wrapped function runs on the timer goroutine; a panic inside
// it is not recovered.
package debounce

import (
	"sync"
	"time"
)

type Debouncer[A any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(A)
	timer   *time.Timer
	seq     uint64
	args    A
	pending bool
	running running
}

// New returns a Debouncer calling fn. A negative delay is treated as zero.
func New[A any](delay time.Duration, fn func(A)) *Debouncer[A] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[A]{delay: delay, fn: fn}
}

// Call schedules fn(args) delay from now, replacing any pending invocation.
func (d *Debouncer[A]) Call(args A) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.args = args
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// fire runs fn if seq still names the latest Call. A timer that already
// expired when Stop was called lands here with an old seq and does nothing.
func (d *Debouncer[A]) fire(seq uint64) {
	args, ok := d.take(seq)
	if !ok {
		return
	}
	defer d.running.done()
	d.fn(args)
}

// take claims the pending invocation. A claimed invocation counts as running
// until the caller calls running.done.
func (d *Debouncer[A]) take(seq uint64) (A, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero A
	if !d.pending || seq != d.seq {
		return zero, false
	}
	args := d.args
	d.args = zero
	d.pending = false
	d.timer = nil
	d.running.add()
	return args, true
}

// Flush runs a pending invocation now, on the calling goroutine, and waits
// for one a timer had already started. It reports whether it ran one itself.
func (d *Debouncer[A]) Flush() bool {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	seq := d.seq
	d.mu.Unlock()
	args, ok := d.take(seq)
	if ok {
		d.fn(args)
		d.running.done()
	}
	d.running.wait()
	return ok
}

// Cancel drops a pending invocation without running it.
func (d *Debouncer[A]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero A
	d.args = zero
	d.pending = false
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer[A]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Func returns Call as a plain function value.
func (d *Debouncer[A]) Func() func(A) {
	return d.Call
}
