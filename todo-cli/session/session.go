// Package session binds the local mirror to debounced remote mutations.
//
// Handle* methods and HandlePush run on the UI goroutine and update the
// mirror synchronously. Remote calls run later on debounce timer goroutines
// (or a fresh goroutine for deletes) and report back through Results.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"livetodo/internal/contract"
	"livetodo/todo-cli/debounce"
	"livetodo/todo-cli/mirror"
)

// Remote is the mutation side of the todo services.
type Remote interface {
	CreateTodo(ctx context.Context, text string) (string, error)
	UpdateTodo(ctx context.Context, id, text string) error
	MarkTodo(ctx context.Context, id string, completed bool) error
	DeleteTodo(ctx context.Context, id string) error
}

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpMark   Op = "mark"
	OpDelete Op = "delete"
)

// Result is the outcome of one remote mutation. Text and Completed carry the
// value an update or mark sent.
type Result struct {
	Op        Op
	ID        string
	Text      string
	Completed bool
	Err       error
}

type Config struct {
	UpdateDelay time.Duration
	MarkDelay   time.Duration
	CreateDelay time.Duration
	// Timeout bounds a single remote call.
	Timeout time.Duration
	Policy  mirror.Policy
}

func DefaultConfig() Config {
	return Config{
		UpdateDelay: 500 * time.Millisecond,
		MarkDelay:   500 * time.Millisecond,
		CreateDelay: 100 * time.Millisecond,
		Timeout:     10 * time.Second,
		Policy:      mirror.ResetOnPush,
	}
}

type Session struct {
	cfg    Config
	remote Remote
	mirror *mirror.Mirror
	logger log.FieldLogger

	update *debounce.Keyed[string, string]
	mark   *debounce.Keyed[string, bool]
	create *debounce.Callback[string]

	results chan Result
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// mu orders Handle* scheduling against Close.
	mu     sync.Mutex
	closed bool
}

func New(remote Remote, cfg Config, logger log.FieldLogger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		remote:  remote,
		mirror:  mirror.New(cfg.Policy),
		logger:  logger,
		results: make(chan Result, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.update = debounce.NewKeyed(cfg.UpdateDelay, s.sendUpdate)
	s.mark = debounce.NewKeyed(cfg.MarkDelay, s.sendMark)
	s.create = debounce.NewCallback(cfg.CreateDelay, s.sendCreate)
	return s
}

// Mirror exposes the local view for rendering.
func (s *Session) Mirror() *mirror.Mirror { return s.mirror }

// Results delivers the outcome of every remote mutation.
func (s *Session) Results() <-chan Result { return s.results }

// HandleInputChange shows text for id at once and schedules the write.
func (s *Session) HandleInputChange(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.mirror.EditText(id, text) {
		return
	}
	s.update.Call(id, text)
}

// HandleMark shows the completion flag at once and schedules the write.
func (s *Session) HandleMark(id string, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.mirror.SetCompleted(id, completed) {
		return
	}
	s.mark.Call(id, completed)
}

// HandleToggle flips the displayed completion flag of id.
func (s *Session) HandleToggle(id string) {
	c, ok := s.mirror.Completed(id)
	if !ok {
		return
	}
	s.HandleMark(id, !c)
}

// HandleCreate schedules creation of a record. Blank text is ignored.
func (s *Session) HandleCreate(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.create.Call(text)
	return true
}

// HandleDelete removes id right away; deletes are not debounced.
func (s *Session) HandleDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.update.Cancel(id)
	s.mark.Cancel(id)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendDelete(id)
	}()
}

// HandlePush makes a server snapshot authoritative.
func (s *Session) HandlePush(snapshot []contract.Todo) {
	s.mirror.Reconcile(snapshot)
}

// HandleResult folds a mutation outcome back into the mirror.
func (s *Session) HandleResult(r Result) {
	switch r.Op {
	case OpUpdate:
		s.mirror.SettleText(r.ID, r.Text, r.Err)
	case OpMark:
		s.mirror.SettleCompleted(r.ID, r.Completed, r.Err)
	}
}

// Close sends every pending write, waits for writes already in flight and
// stops the session. Later Handle* calls are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Flush also waits for invocations their timers already started. No new
	// ones can be scheduled once closed is set.
	s.create.Flush()
	s.update.Flush()
	s.mark.Flush()
	s.wg.Wait()
	s.cancel()
}

func (s *Session) callCtx() (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.Timeout)
	}
	return context.WithCancel(s.ctx)
}

func (s *Session) sendCreate(text string) {
	ctx, cancel := s.callCtx()
	defer cancel()
	id, err := s.remote.CreateTodo(ctx, text)
	s.report(Result{Op: OpCreate, ID: id, Err: err})
}

func (s *Session) sendUpdate(id, text string) {
	ctx, cancel := s.callCtx()
	defer cancel()
	s.report(Result{Op: OpUpdate, ID: id, Text: text, Err: s.remote.UpdateTodo(ctx, id, text)})
}

func (s *Session) sendMark(id string, completed bool) {
	ctx, cancel := s.callCtx()
	defer cancel()
	s.report(Result{Op: OpMark, ID: id, Completed: completed, Err: s.remote.MarkTodo(ctx, id, completed)})
}

func (s *Session) sendDelete(id string) {
	ctx, cancel := s.callCtx()
	defer cancel()
	s.report(Result{Op: OpDelete, ID: id, Err: s.remote.DeleteTodo(ctx, id)})
}

// report never blocks the timer goroutine; a full channel drops the result.
func (s *Session) report(r Result) {
	entry := s.logger.WithFields(log.Fields{"op": r.Op, "id": r.ID})
	if r.Err != nil {
		entry.WithError(r.Err).Warn("mutation failed")
	} else {
		entry.Debug("mutation sent")
	}
	select {
	case s.results <- r:
	default:
		entry.Warn("result dropped")
	}
}
