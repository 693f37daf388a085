package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"livetodo/internal/config"
	"livetodo/internal/contract"
)

type enqueueJob struct {
	cmds  []contract.Command
	added []string // keys added to deduper (for rollback on enqueue failure)
}

// SenderConfig sizes the command worker pool.
type SenderConfig struct {
	Workers        int
	Buffer         int
	EnqueueTimeout time.Duration
	HandoffTimeout time.Duration
}

// SenderConfigFromEnv reads ENQUEUE_* overrides on top of the defaults.
func SenderConfigFromEnv() (cfg SenderConfig, err error) {
	if cfg.Workers, err = config.Int("ENQUEUE_WORKERS", 32); err != nil {
		return cfg, err
	}
	if cfg.Buffer, err = config.Int("ENQUEUE_BUFFER", 4096); err != nil {
		return cfg, err
	}
	if cfg.EnqueueTimeout, err = config.Duration("ENQUEUE_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	cfg.HandoffTimeout, err = config.Duration("ENQUEUE_HANDOFF_TIMEOUT", 15*time.Millisecond)
	return cfg, err
}

// CommandSender hands accepted commands to a bounded pool of workers that
// push them onto the command queue.
type CommandSender struct {
	store          Storage
	deduper        Deduper
	log            *log.Logger
	jobs           chan enqueueJob
	enqueueTimeout time.Duration
	handoffTimeout time.Duration
	wg             sync.WaitGroup
	closeOnce      sync.Once
}

// NewCommandSender starts cfg.Workers workers. With zero workers every job is
// enqueued inline by the caller.
func NewCommandSender(store Storage, deduper Deduper, logger *log.Logger, cfg SenderConfig) *CommandSender {
	if logger == nil {
		panic("Logger is not initialized")
	}
	s := &CommandSender{
		store:          store,
		deduper:        deduper,
		log:            logger,
		enqueueTimeout: cfg.EnqueueTimeout,
		handoffTimeout: cfg.HandoffTimeout,
	}
	if s.enqueueTimeout <= 0 {
		s.enqueueTimeout = 60 * time.Second
	}
	if cfg.Workers > 0 {
		s.jobs = make(chan enqueueJob, cfg.Buffer)
		for i := 0; i < cfg.Workers; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
	}
	logger.Infof("command sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, s.enqueueTimeout, s.handoffTimeout)
	return s
}

// Close stops accepting jobs and waits for in-flight ones to drain.
func (s *CommandSender) Close() {
	s.closeOnce.Do(func() {
		if s.jobs != nil {
			close(s.jobs)
		}
		s.wg.Wait()
	})
}

func (s *CommandSender) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		if err := s.enqueue(j); err != nil {
			s.log.Errorf("enqueue failed, err: %v, count: %d, worker: %d", err, len(j.cmds), id)
		}
	}
}

func (s *CommandSender) enqueue(j enqueueJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.enqueueTimeout)
	err := s.store.EnqueueCommands(ctx, j.cmds)
	cancel()

	for _, cmd := range j.cmds {
		outcome := "enqueued"
		if err != nil {
			outcome = "failed"
		}
		commandsTotal.WithLabelValues(cmd.Type, outcome).Inc()
	}
	if err != nil {
		s.rollback(j.added)
	}
	return err
}

func (s *CommandSender) rollback(keys []string) {
	if s.deduper == nil {
		return
	}
	if err := s.deduper.Release(context.Background(), keys...); err != nil {
		s.log.WithError(err).WithField("keys", keys).Error("dedupe rollback failed")
	}
}

// dedupe drops commands whose idempotency key was already seen. A failing
// deduper lets every command through.
func (s *CommandSender) dedupe(ctx context.Context, cmds []contract.Command) (pending []contract.Command, added []string) {
	if s.deduper == nil || len(cmds) == 0 {
		return cmds, nil
	}
	keys := make([]string, len(cmds))
	for i := range cmds {
		keys[i] = cmds[i].IdempotencyKey
	}
	results, err := s.deduper.Claim(ctx, keys...)
	if err != nil {
		s.log.WithError(err).Warn("dedupe unavailable; enqueueing without idempotency check")
		for i, ok := range results {
			if ok {
				added = append(added, keys[i])
			}
		}
		return cmds, added
	}

	pending = make([]contract.Command, 0, len(cmds))
	for i, ok := range results {
		if !ok {
			commandsTotal.WithLabelValues(cmds[i].Type, "duplicate").Inc()
			s.log.WithField("idempotencyKey", keys[i]).Debug("duplicate command dropped")
			continue
		}
		pending = append(pending, cmds[i])
		added = append(added, keys[i])
	}
	return pending, added
}

func (s *CommandSender) tryEnqueue(job enqueueJob) bool {
	if s.jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(s.jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if s.handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(s.handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(s.jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan enqueueJob, job enqueueJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan enqueueJob, job enqueueJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
