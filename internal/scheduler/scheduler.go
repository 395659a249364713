// Package scheduler runs the periodic sweeps: publishing scheduled chapters and
// renewing or expiring subscriptions. Each run holds a distributed lock so only one
// replica sweeps at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mAmineChniti/Forklore/internal/lock"
	"github.com/mAmineChniti/Forklore/internal/metrics"
	"github.com/mAmineChniti/Forklore/internal/telemetry"
	"go.uber.org/zap"
)

const (
	JobPublishChapters = "publish_scheduled_chapters"
	JobSubscriptions   = "subscription_sweep"

	lockKeyPrefix = "scheduler:"
)

var (
	ErrSchedulerStopped        = errors.New("scheduler stopped")
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
	ErrUnknownJob              = errors.New("unknown job")
)

// Job is one periodic sweep. Run reports how many records it touched.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

type Scheduler struct {
	locker  lock.Locker
	lockTTL time.Duration
	logger  *zap.Logger
	jobs    []Job

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	stoppedC chan struct{}
}

func New(locker lock.Locker, lockTTL time.Duration, logger *zap.Logger, jobs ...Job) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Scheduler{
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger.Named("scheduler"),
		jobs:    jobs,
	}
}

// Start launches one loop per job. Every job runs once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})

	stop := s.stopCh
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job, stop)
		}(job)
	}
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(s.stoppedC)

	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop signals every loop and waits for in-flight runs, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	s.running = false
	close(s.stopCh)
	stopped := s.stoppedC
	s.mu.Unlock()

	select {
	case <-stopped:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, job Job, stop <-chan struct{}) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	_ = s.RunJob(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			_ = s.RunJob(ctx, job)
		}
	}
}

// RunOnce runs the named job a single time under its lock.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.RunJob(ctx, job)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// RunJob runs job under its lock. A run skipped because another replica holds the
// lock is not an error.
func (s *Scheduler) RunJob(ctx context.Context, job Job) (err error) {
	ctx, span := telemetry.Start(ctx, "scheduler."+job.Name)
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	var n int
	err = s.locker.WithLock(ctx, lockKeyPrefix+job.Name, s.lockTTL, func(ctx context.Context) error {
		var runErr error
		n, runErr = job.Run(ctx)
		return runErr
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		metrics.RecordSchedulerJob(job.Name, "skipped", elapsed.Seconds())
		s.logger.Debug("sweep skipped, lock held elsewhere", zap.String("job", job.Name))
		return nil
	case err != nil:
		metrics.RecordSchedulerJob(job.Name, "error", elapsed.Seconds())
		s.logger.Error("sweep failed", zap.String("job", job.Name), zap.Int("count", n), zap.Error(err))
		return err
	}
	metrics.RecordSchedulerJob(job.Name, "ok", elapsed.Seconds())
	s.logger.Debug("sweep completed", zap.String("job", job.Name), zap.Int("count", n), zap.Duration("duration", elapsed))
	return nil
}

type ChapterPublisher interface {
	PublishScheduledChapters(ctx context.Context) (int, error)
}

type SubscriptionSweeper interface {
	RenewSubscriptions(ctx context.Context) (int, error)
	ExpireSubscriptions(ctx context.Context) (int, error)
}

func ChapterJob(p ChapterPublisher, every time.Duration) Job {
	return Job{Name: JobPublishChapters, Interval: every, Run: p.PublishScheduledChapters}
}

// SubscriptionJob renews before it expires, so an auto-renewing subscription ending
// today is rolled over rather than lapsed.
func SubscriptionJob(s SubscriptionSweeper, every time.Duration) Job {
	return Job{
		Name:     JobSubscriptions,
		Interval: every,
		Run: func(ctx context.Context) (int, error) {
			renewed, err := s.RenewSubscriptions(ctx)
			if err != nil {
				return renewed, err
			}
			expired, err := s.ExpireSubscriptions(ctx)
			return renewed + expired, err
		},
	}
}
