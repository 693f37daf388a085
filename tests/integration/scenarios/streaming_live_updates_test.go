package scenarios

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"livetodo/internal/contract"
)

func TestStreamingLiveUpdates(t *testing.T) {
	s := newStack(t)
	if resp, err := http.Get(s.cfg.StreamBase + "/healthz"); err != nil {
		t.Skipf("stream unavailable: %v", err)
	} else {
		resp.Body.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots := make(chan []contract.Todo, 16)
	go s.todos.Subscribe(ctx, func(todos []contract.Todo) {
		select {
		case snapshots <- todos:
		default:
		}
	})

	select {
	case <-snapshots:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	text := fmt.Sprintf("streamed %d", time.Now().UnixNano())
	id, err := s.todos.CreateTodo(ctx, text)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.After(s.cfg.sla())
	for {
		select {
		case todos := <-snapshots:
			if got, n := find(todos, id); n == 1 && got.Text == text {
				return
			}
		case <-deadline:
			t.Fatal("created todo never pushed")
		}
	}
}
