package debounce

import (
	"sync"
	"time"
)

type keyedCall[A any] struct {
	timer *time.Timer
	seq   uint64
	args  A
}

// Keyed runs an independent debounce window per key. Calls for one key never
// cancel calls for another. A key is forgotten once its invocation fires.
type Keyed[K comparable, A any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(K, A)
	seq     uint64
	pending map[K]*keyedCall[A]
	running running
}

func NewKeyed[K comparable, A any](delay time.Duration, fn func(K, A)) *Keyed[K, A] {
	if delay < 0 {
		delay = 0
	}
	return &Keyed[K, A]{delay: delay, fn: fn, pending: make(map[K]*keyedCall[A])}
}

// Call schedules fn(key, args), replacing the pending invocation for key.
func (k *Keyed[K, A]) Call(key K, args A) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if c, ok := k.pending[key]; ok {
		c.timer.Stop()
	}
	k.seq++
	seq := k.seq
	c := &keyedCall[A]{seq: seq, args: args}
	c.timer = time.AfterFunc(k.delay, func() { k.fire(key, seq) })
	k.pending[key] = c
}

func (k *Keyed[K, A]) fire(key K, seq uint64) {
	k.mu.Lock()
	c, ok := k.pending[key]
	if !ok || c.seq != seq {
		k.mu.Unlock()
		return
	}
	delete(k.pending, key)
	k.running.add()
	k.mu.Unlock()
	defer k.running.done()
	k.fn(key, c.args)
}

// Flush runs every pending invocation now, on the calling goroutine, and
// returns how many ran. It then waits for invocations that timers had already
// started.
func (k *Keyed[K, A]) Flush() int {
	k.mu.Lock()
	calls := k.pending
	k.pending = make(map[K]*keyedCall[A])
	for _, c := range calls {
		c.timer.Stop()
	}
	k.mu.Unlock()
	for key, c := range calls {
		k.fn(key, c.args)
	}
	k.running.wait()
	return len(calls)
}

// Cancel drops the pending invocation for key.
func (k *Keyed[K, A]) Cancel(key K) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if c, ok := k.pending[key]; ok {
		c.timer.Stop()
		delete(k.pending, key)
	}
}

func (k *Keyed[K, A]) Pending(key K) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.pending[key]
	return ok
}

// Len returns the number of keys with a pending invocation.
func (k *Keyed[K, A]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}
