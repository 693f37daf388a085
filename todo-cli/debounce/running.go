package debounce

import "sync"

// running counts invocations that left the pending set but have not
// returned yet. Unlike a WaitGroup it may be incremented while a wait is in
// progress.
type running struct {
	mu   sync.Mutex
	idle *sync.Cond
	n    int
}

func (r *running) add() {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func (r *running) done() {
	r.mu.Lock()
	r.n--
	if r.n == 0 && r.idle != nil {
		r.idle.Broadcast()
	}
	r.mu.Unlock()
}

func (r *running) wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idle == nil {
		r.idle = sync.NewCond(&r.mu)
	}
	for r.n > 0 {
		r.idle.Wait()
	}
}
