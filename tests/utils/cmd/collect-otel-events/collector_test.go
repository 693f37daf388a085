package main

import "testing"

func TestCollectorSummarisesTodoRequests(t *testing.T) {
	c := newCollector(todosEventName, todosEventDomain)
	lines := []string{
		`todo-api-1  | {"event.name":"todos.request","event.domain":"livetodo.api","severity_text":"INFO","attributes":{"http.status_code":200,"livetodo.todos.total_ms":10,"livetodo.todos.fetch_ms":4,"livetodo.todos.encode_ms":1,"livetodo.todos.todos_returned":3}}`,
		`{"event.name":"todos.request","event.domain":"livetodo.api","severity_text":"INFO","attributes":{"http.status_code":200,"livetodo.todos.total_ms":30,"livetodo.todos.todos_returned":5}}`,
		`{"event.name":"todos.request","event.domain":"livetodo.api","severity_text":"ERROR","attributes":{"http.status_code":500,"livetodo.todos.total_ms":50,"livetodo.todos.error_stage":"fetch"}}`,
		`{"event.name":"other","event.domain":"livetodo.api","severity_text":"INFO"}`,
		`not json`,
		``,
	}
	for _, l := range lines {
		c.ingest(l)
	}
	r := c.report()

	if r.TotalEvents != 3 {
		t.Fatalf("expected 3 events, got %d", r.TotalEvents)
	}
	if r.SkippedLines != 1 {
		t.Fatalf("expected 1 skipped line, got %d", r.SkippedLines)
	}
	if r.Status["200"] != 2 || r.Status["500"] != 1 {
		t.Fatalf("unexpected status counts %v", r.Status)
	}
	if r.Severity["ERROR"] != 1 {
		t.Fatalf("unexpected severity counts %v", r.Severity)
	}
	total := r.DurationMs["total"]
	if total.Count != 3 || total.Min != 10 || total.Max != 50 || total.P50 != 30 || total.Avg != 30 {
		t.Fatalf("unexpected total distribution %+v", total)
	}
	if r.DurationMs["fetch"].Count != 1 {
		t.Fatalf("unexpected fetch distribution %+v", r.DurationMs["fetch"])
	}
	if r.TodosReturned.Count != 2 || r.TodosReturned.Max != 5 {
		t.Fatalf("unexpected todos_returned %+v", r.TodosReturned)
	}
	if r.ErrorStages["fetch"] != 1 {
		t.Fatalf("unexpected error stages %v", r.ErrorStages)
	}
	if r.String() == "" {
		t.Fatal("expected a one-line summary")
	}
}

func TestQuantileNearestRank(t *testing.T) {
	s := samples{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := s.quantile(0.95); got != 10 {
		t.Fatalf("p95 = %v", got)
	}
	if got := s.quantile(0.5); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
}
