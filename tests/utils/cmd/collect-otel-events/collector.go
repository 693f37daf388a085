package main

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	todosEventName   = "todos.request"
	todosEventDomain = "livetodo.api"

	attrStatus        = "http.status_code"
	attrPrefix        = "livetodo.todos."
	attrTodosReturned = attrPrefix + "todos_returned"
	attrErrorStage    = attrPrefix + "error_stage"
)

// durationAttrs maps summary keys onto the *_ms attributes todo-api emits.
var durationAttrs = map[string]string{
	"total":  attrPrefix + "total_ms",
	"fetch":  attrPrefix + "fetch_ms",
	"encode": attrPrefix + "encode_ms",
}

type event struct {
	Name       string         `json:"event.name"`
	Domain     string         `json:"event.domain"`
	Severity   string         `json:"severity_text"`
	Attributes map[string]any `json:"attributes"`
}

type samples []float64

func (s samples) summary() distribution {
	if len(s) == 0 {
		return distribution{}
	}
	sorted := append(samples(nil), s...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return distribution{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P50:   sorted.quantile(0.50),
		P95:   sorted.quantile(0.95),
	}
}

// quantile uses nearest rank on an already sorted slice.
func (s samples) quantile(q float64) float64 {
	rank := int(math.Ceil(q*float64(len(s)))) - 1
	if rank < 0 {
		rank = 0
	}
	return s[rank]
}

type distribution struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

type collector struct {
	name     string
	domain   string
	events   int
	skipped  int
	severity map[string]int
	status   map[string]int
	stages   map[string]int
	millis   map[string]samples
	returned samples
}

type report struct {
	EventName     string                  `json:"event_name"`
	EventDomain   string                  `json:"event_domain"`
	TotalEvents   int                     `json:"total_events"`
	Severity      map[string]int          `json:"severity_counts"`
	Status        map[string]int          `json:"status_counts"`
	DurationMs    map[string]distribution `json:"duration_ms"`
	TodosReturned distribution            `json:"todos_returned"`
	ErrorStages   map[string]int          `json:"error_stages,omitempty"`
	SkippedLines  int                     `json:"skipped_lines"`
}

func newCollector(name, domain string) *collector {
	return &collector{
		name:     name,
		domain:   domain,
		severity: map[string]int{},
		status:   map[string]int{},
		stages:   map[string]int{},
		millis:   map[string]samples{},
	}
}

// ingest accepts one log line. docker compose prefixes lines with
// "service | ", which is stripped before decoding.
func (c *collector) ingest(line string) {
	line = strings.TrimSpace(line)
	if _, rest, ok := strings.Cut(line, "|"); ok && !strings.HasPrefix(line, "{") {
		line = strings.TrimSpace(rest)
	}
	if line == "" {
		return
	}
	var ev event
	if err := sonic.UnmarshalString(line, &ev); err != nil {
		c.skipped++
		return
	}
	if ev.Name != c.name || (c.domain != "" && ev.Domain != c.domain) {
		return
	}
	c.add(ev)
}

func (c *collector) add(ev event) {
	c.events++
	sev := strings.ToUpper(ev.Severity)
	if sev == "" {
		sev = "UNSPECIFIED"
	}
	c.severity[sev]++

	if v, ok := number(ev.Attributes[attrStatus]); ok {
		c.status[strconv.Itoa(int(v))]++
	}
	for key, attr := range durationAttrs {
		if v, ok := number(ev.Attributes[attr]); ok {
			c.millis[key] = append(c.millis[key], v)
		}
	}
	if v, ok := number(ev.Attributes[attrTodosReturned]); ok {
		c.returned = append(c.returned, v)
	}
	if stage, ok := ev.Attributes[attrErrorStage].(string); ok && stage != "" {
		c.stages[stage]++
	}
}

func (c *collector) report() report {
	r := report{
		EventName:     c.name,
		EventDomain:   c.domain,
		TotalEvents:   c.events,
		Severity:      c.severity,
		Status:        c.status,
		DurationMs:    make(map[string]distribution, len(c.millis)),
		TodosReturned: c.returned.summary(),
		SkippedLines:  c.skipped,
	}
	for key, s := range c.millis {
		r.DurationMs[key] = s.summary()
	}
	if len(c.stages) > 0 {
		r.ErrorStages = c.stages
	}
	return r
}

func (r report) String() string {
	total := r.DurationMs["total"]
	return strings.Join([]string{
		"event=" + r.EventName,
		"total=" + strconv.Itoa(r.TotalEvents),
		"warn=" + strconv.Itoa(r.Severity["WARN"]),
		"error=" + strconv.Itoa(r.Severity["ERROR"]),
		"p50_total_ms=" + strconv.FormatFloat(total.P50, 'f', 2, 64),
		"p95_total_ms=" + strconv.FormatFloat(total.P95, 'f', 2, 64),
	}, " ")
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
