package backoff

import (
	"context"
	"time"

	"github.com/etruckzm/etruck-go/libs/backoff/retrypolicy"
)

type (
	// RetryFunc defines a retry function
	RetryFunc func(ctx context.Context, operation Operation, retryPolicy retrypolicy.Retry, IsRetriable IsRetriable) (interface{}, error)

	// Operation the operation to be executed with retry
	Operation func() (interface{}, error)

	// IsRetriable a function to determine if an error caused by the executed operation is retriable
	IsRetriable func(error) bool
)

// Retry executes the given Operation using the provided retrypolicy.Retry policy and IsRetriable conditions
func Retry(ctx context.Context, operation Operation, retryPolicy retrypolicy.Retry, IsRetriable IsRetriable) (interface{}, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response, err := operation()
		if err == nil {
			return response, nil
		}

		if !IsRetriable(err) {
			return nil, err
		}

		next := retryPolicy.CalculateNextDelay()
		if next == retrypolicy.Done {
			return nil, err
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Always treats every error as retriable
func Always(error) bool { return true }
