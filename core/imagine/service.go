package imagine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/CardSorting/hana-relay/core/infra/logging"
)

const (
	defaultWorkers = 10
	taskQueueDepth = 64
)

var (
	// ErrClosed rejects submissions after Close.
	ErrClosed = errors.New("imagine service closed")
	// ErrBusy rejects submissions while the task queue is full.
	ErrBusy = errors.New("imagine service busy")
)

// Provider creates an image-generation job and returns its status URL.
type Provider interface {
	CreateJob(ctx context.Context, prompt string) (string, error)
}

// Archiver stores a generated image and returns its durable URL.
type Archiver interface {
	Archive(ctx context.Context, imageURL, prompt string) (string, error)
}

// Task is one image request. Done receives the final image URL or the
// terminal error; it is always called exactly once.
type Task struct {
	UserID string
	Prompt string
	Done   func(imageURL string, err error)
}

// Options wires a Service.
type Options struct {
	Provider Provider
	Archiver Archiver
	Watcher  *Watcher
	Workers  int
}

// Service runs image jobs through a bounded worker pool: create the provider
// job, poll it to completion, archive the output.
type Service struct {
	provider Provider
	archiver Archiver
	watcher  *Watcher

	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewService starts the worker pool.
func NewService(opts Options) *Service {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	watcher := opts.Watcher
	if watcher == nil {
		watcher = &Watcher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		provider: opts.Provider,
		archiver: opts.Archiver,
		watcher:  watcher,
		tasks:    make(chan Task, taskQueueDepth),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

// Submit queues a task for the pool. It never blocks; a full queue is
// reported to the caller instead.
func (s *Service) Submit(task Task) error {
	if task.Done == nil {
		return errors.New("task requires a completion callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.tasks <- task:
		return nil
	default:
		return ErrBusy
	}
}

// Close stops the pool. The shared context is canceled first so in-flight
// polls abort immediately instead of running out their attempt budget; queued
// tasks still receive exactly one Done call, failing fast with the canceled
// context. Blocks until every worker has exited.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	for task := range s.tasks {
		s.process(task)
	}
}

func (s *Service) process(task Task) {
	jobID := uuid.NewString()
	logging.Info("imagine", "job started", "job_id", jobID, "user_id", task.UserID)

	statusURL, err := s.provider.CreateJob(s.ctx, task.Prompt)
	if err != nil {
		logging.Error("imagine", "provider rejected job", "job_id", jobID, "error", err)
		task.Done("", err)
		return
	}

	imageURL, err := s.watcher.Watch(s.ctx, statusURL)
	if err != nil {
		logging.Error("imagine", "job did not resolve", "job_id", jobID, "error", err)
		task.Done("", err)
		return
	}

	if s.archiver != nil {
		archived, err := s.archiver.Archive(s.ctx, imageURL, task.Prompt)
		if err != nil {
			// The generated image is still usable; archive failures are
			// logged and the original URL is returned.
			logging.Warn("imagine", "archive failed", "job_id", jobID, "error", err)
		} else {
			imageURL = archived
		}
	}

	logging.Info("imagine", "job resolved", "job_id", jobID, "user_id", task.UserID)
	task.Done(imageURL, nil)
}
