package retrypolicy

import "time"

// Quick returns a fresh policy that gives up after a few hundred milliseconds
func Quick() Retry {
	p, _ := New(
		WithInitialInterval(25*time.Millisecond),
		WithBackoffCoefficient(2.0),
		WithMaximumInterval(200*time.Millisecond),
		WithExpirationInterval(2*time.Second),
		WithMaximumAttempts(3),
	)
	return p
}

// NoRetry policy to be used if no retries are required
func NoRetry() Retry {
	p, _ := New()
	return p
}
