package retrypolicy

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"
)

// Done is returned by CalculateNextDelay once no further attempt should be made
const Done time.Duration = -1

type (
	// Retry hands out the delay before the next attempt
	Retry interface {
		CalculateNextDelay() time.Duration
	}

	policy struct {
		startTime          time.Time
		currentAttempt     int
		initialInterval    time.Duration
		backoffCoefficient float64
		maximumInterval    time.Duration
		expirationInterval time.Duration
		maximumAttempt     int
	}

	// Option func to build retry policy
	Option func(policy *policy) error
)

// New return a new instance of retry policy, a policy is stateful and must not be shared
func New(options ...Option) (Retry, error) {
	p := &policy{startTime: time.Now()}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, fmt.Errorf("error initializing retry policy %w", err)
		}
	}

	return p, nil
}

// CalculateNextDelay returns the next delay interval based on the retry policy
func (p *policy) CalculateNextDelay() time.Duration {
	if p.currentAttempt >= p.maximumAttempt {
		return Done
	}

	elapsed := time.Since(p.startTime)
	if p.expirationInterval != 0 && elapsed >= p.expirationInterval {
		return Done
	}

	next := float64(p.initialInterval) * math.Pow(p.backoffCoefficient, float64(p.currentAttempt))
	if next <= 0 {
		return Done
	}

	if p.maximumInterval != 0 {
		next = math.Min(next, float64(p.maximumInterval))
	}

	if p.expirationInterval != 0 {
		next = math.Min(math.Max(0, float64(p.expirationInterval-elapsed)), next)
	}

	if time.Duration(next) < p.initialInterval {
		return Done
	}

	// up to 20% jitter below the computed interval
	jitter := int64(0.2 * next)
	if jitter < 1 {
		jitter = 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(jitter))
	if err != nil {
		panic("panic generating random int for jitter")
	}

	p.currentAttempt++
	return time.Duration(next*0.8 + float64(n.Int64()))
}

// WithInitialInterval sets the first delay
func WithInitialInterval(initialInterval time.Duration) Option {
	return func(p *policy) error {
		if initialInterval < 0 {
			return fmt.Errorf("initial interval must not be negative: %s", initialInterval)
		}
		p.initialInterval = initialInterval
		return nil
	}
}

// WithBackoffCoefficient sets the multiplier applied per attempt
func WithBackoffCoefficient(backoffCoefficient float64) Option {
	return func(p *policy) error {
		p.backoffCoefficient = backoffCoefficient
		return nil
	}
}

// WithMaximumInterval caps a single delay
func WithMaximumInterval(maximumInterval time.Duration) Option {
	return func(p *policy) error {
		p.maximumInterval = maximumInterval
		return nil
	}
}

// WithExpirationInterval caps the total time spent retrying
func WithExpirationInterval(expirationInterval time.Duration) Option {
	return func(p *policy) error {
		p.expirationInterval = expirationInterval
		return nil
	}
}

// WithMaximumAttempts caps the number of retries
func WithMaximumAttempts(maximumAttempts int) Option {
	return func(p *policy) error {
		p.maximumAttempt = maximumAttempts
		return nil
	}
}
