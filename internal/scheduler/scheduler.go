package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

// Job is one periodic task.
type Job struct {
	Name string
	// Spec is a standard five field cron expression.
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs on their cron schedules.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []Job
}

// New creates a new Scheduler evaluating cron specs in loc.
func New(loc *time.Location, jobs []Job) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		jobs:      jobs,
	}
}

// Start schedules every job and starts the underlying scheduler. Jobs run
// with ctx; a job still running when it is next due is not skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		log.Warn().Str("service", "scheduler").Msg("no jobs configured; nothing to schedule")
		return nil
	}

	for _, job := range s.jobs {
		_, err := s.scheduler.Cron(job.Spec).Tag(job.Name).Do(func() {
			RunJob(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		log.Info().Str("service", "scheduler").Msgf("scheduled %s at %q", job.Name, job.Spec)
	}

	s.scheduler.StartAsync()
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunJob runs job once, logging its outcome. A panic is logged and
// swallowed so one broken job never takes the process down.
func RunJob(ctx context.Context, job Job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error().Str("service", "scheduler").Str("job", job.Name).
				Str("stack", string(debug.Stack())).Msgf("job panicked: %v", r)
		}
	}()

	log.Debug().Str("service", "scheduler").Str("job", job.Name).Msg("running job")
	if err = job.Run(ctx); err != nil {
		log.Error().Err(err).Str("service", "scheduler").Str("job", job.Name).Msg("job failed")
		return err
	}
	log.Info().Str("service", "scheduler").Str("job", job.Name).
		Dur("took", time.Since(start)).Msg("job completed")
	return nil
}
