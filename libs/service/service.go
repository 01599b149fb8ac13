package service

import (
	"context"
	"time"

	"github.com/etruckzm/etruck-go/libs/clients"
	"github.com/etruckzm/etruck-go/libs/logging"
	sentry "github.com/getsentry/sentry-go"
)

// JobFunc - type that defines what a Job Function should look like
type JobFunc func(context.Context) (bool, error)

// Job - Structure defining what a common job meta-information
type Job struct {
	Name    string
	Func    JobFunc
	Workers int
	Cadence time.Duration
}

// JobService - interface defining what can have jobs
type JobService interface {
	Jobs() []Job
}

// JobWorker runs job every duration until ctx is done.
// When a run reports it attempted work the next run starts immediately.
func JobWorker(ctx context.Context, job JobFunc, duration time.Duration) {
	logger := logging.Logger(ctx, "service.JobWorker")
	for {
		attempted, err := job(ctx)
		if err != nil {
			log := logger.Error().Err(err)
			if state, serr := clients.UnwrapHTTPState(err); serr == nil {
				log = log.Int("status", state.Status).
					Str("path", state.Path)
			}
			log.Msg("error encountered in job run")
			sentry.CaptureException(err)
		}

		wait := duration
		if attempted && err == nil {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunJobs starts the configured number of workers for every job of svc
func RunJobs(ctx context.Context, svc JobService) {
	for _, job := range svc.Jobs() {
		workers := job.Workers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			go JobWorker(ctx, job.Func, job.Cadence)
		}
	}
}
