package api

import (
	"sync"
	"testing"
	"time"
)

func fixedClock(at time.Time) *stampClock {
	return &stampClock{now: func() time.Time { return at }}
}

func TestReserveIsConsecutive(t *testing.T) {
	at := time.Unix(0, 1_000)
	c := fixedClock(at)
	if first := c.reserve(3); first != 1_000 {
		t.Fatalf("first = %d", first)
	}
	// the wall clock has not moved, so the next range starts after the last one
	if next := c.reserve(2); next != 1_003 {
		t.Fatalf("next = %d", next)
	}
	if c.last.Load() != 1_004 {
		t.Fatalf("last = %d", c.last.Load())
	}
}

func TestReserveSurvivesClockGoingBack(t *testing.T) {
	now := time.Unix(0, 5_000)
	c := &stampClock{now: func() time.Time { return now }}
	a := c.reserve(1)
	now = time.Unix(0, 10)
	if b := c.reserve(1); b <= a {
		t.Fatalf("timestamp went backwards: %d then %d", a, b)
	}
}

func TestReserveNothing(t *testing.T) {
	c := fixedClock(time.Unix(0, 42))
	if got := c.reserve(0); got != 0 || c.last.Load() != 0 {
		t.Fatalf("reserve(0) = %d, last %d", got, c.last.Load())
	}
}

func TestReserveConcurrentRangesDoNotOverlap(t *testing.T) {
	c := &stampClock{now: time.Now}
	const goroutines, per = 8, 200
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool, goroutines*per*2)
		wg   sync.WaitGroup
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				first := c.reserve(2)
				mu.Lock()
				for _, ts := range []int64{first, first + 1} {
					if seen[ts] {
						t.Errorf("timestamp %d handed out twice", ts)
					}
					seen[ts] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
