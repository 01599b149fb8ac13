package retrypolicy

import (
	"testing"
	"time"

	testutils "github.com/etruckzm/etruck-go/libs/test"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_New(t *testing.T) {
	t.Parallel()
	retryPolicy, err := New(
		WithInitialInterval(time.Second),
		WithBackoffCoefficient(float64(testutils.RandomInt())),
		WithMaximumInterval(time.Second),
		WithExpirationInterval(time.Second),
		WithMaximumAttempts(testutils.RandomInt()),
	)

	assert.NoError(t, err)
	assert.NotNil(t, retryPolicy)
}

func TestRetryPolicy_New_NegativeInterval(t *testing.T) {
	t.Parallel()
	_, err := New(WithInitialInterval(-time.Second))
	assert.Error(t, err)
}

func TestRetryPolicy_CalculateNextDelay_MaxAttempts(t *testing.T) {
	t.Parallel()
	retryPolicy := policy{
		currentAttempt: 1,
		maximumAttempt: 1,
	}
	assert.Equal(t, Done, retryPolicy.CalculateNextDelay())
}

func TestPolicy_CalculateNextDelay_ElapsedTimeGreaterThanExpirationInterval(t *testing.T) {
	t.Parallel()
	retryPolicy := policy{
		maximumAttempt:     10,
		expirationInterval: time.Second * 10,
		startTime:          time.Now().Add(-time.Second * 11),
	}
	assert.Equal(t, Done, retryPolicy.CalculateNextDelay())
}

func TestPolicy_CalculateNextDelay_NextIntervalIsZero(t *testing.T) {
	t.Parallel()
	retryPolicy := policy{
		maximumAttempt:     1,
		expirationInterval: time.Second * 10,
		startTime:          time.Now(),
	}
	assert.Equal(t, Done, retryPolicy.CalculateNextDelay())
}

func TestPolicy_CalculateNextDelay_Quick(t *testing.T) {
	t.Parallel()

	durations := []time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		Done,
	}

	p := Quick()
	for _, expected := range durations {
		actual := p.CalculateNextDelay()

		if expected == Done {
			assert.Equal(t, Done, actual)
			break
		}

		assert.GreaterOrEqual(t, actual, time.Duration(0.8*float64(expected)))
		assert.LessOrEqual(t, actual, expected)
	}
}

func TestPolicy_CalculateNextDelay_NoRetry(t *testing.T) {
	t.Parallel()
	p := NoRetry()
	assert.Equal(t, Done, p.CalculateNextDelay())
	assert.Equal(t, Done, p.CalculateNextDelay())
}
