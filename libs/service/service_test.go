package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs int32
	done := make(chan struct{})
	go func() {
		JobWorker(ctx, func(context.Context) (bool, error) {
			if atomic.AddInt32(&runs, 1) == 2 {
				cancel()
			}
			return false, errors.New("boom")
		}, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

type jobs []Job

func (j jobs) Jobs() []Job { return j }

func TestRunJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 4)
	RunJobs(ctx, jobs{{
		Name:    "sweep",
		Workers: 2,
		Cadence: time.Hour,
		Func: func(context.Context) (bool, error) {
			ran <- struct{}{}
			return false, nil
		},
	}})

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
	}
}
