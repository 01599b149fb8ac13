package payments

import (
	"context"
	"sync"
	"time"

	"github.com/etruckzm/etruck-go/libs/concurrent"
	"github.com/etruckzm/etruck-go/libs/logging"
)

const (
	leasePrefix  = "payments:reconcile:"
	leaseTimeout = 2 * time.Second
)

// PollFunc performs one verification attempt and reports whether the payment is terminal.
type PollFunc func(ctx context.Context, ref string) (bool, error)

// ExpireFunc ends a payment whose attempt budget ran out.
type ExpireFunc func(ctx context.Context, ref string) error

// Reconciler runs at most one polling loop per reference.
//
// A loop sleeps interval, polls, and repeats until the payment is terminal, the loop is
// cancelled or maxAttempts polls were made, in which case the payment is expired.
type Reconciler struct {
	interval    time.Duration
	maxAttempts int
	poll        PollFunc
	expire      ExpireFunc
	lease       Lease

	inflight *concurrent.Set

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewReconciler returns a Reconciler whose loops live until Stop or until ctx is done.
// lease may be nil, in which case loops are singletons within this process only.
func NewReconciler(ctx context.Context, interval time.Duration, maxAttempts int, poll PollFunc, expire ExpireFunc, lease Lease) *Reconciler {
	base, stop := context.WithCancel(ctx)

	return &Reconciler{
		interval:    interval,
		maxAttempts: maxAttempts,
		poll:        poll,
		expire:      expire,
		lease:       lease,
		inflight:    concurrent.NewSet(),
		cancels:     make(map[string]context.CancelFunc),
		base:        base,
		stop:        stop,
	}
}

// Start begins a loop for ref and returns false if one is already running.
func (r *Reconciler) Start(ctx context.Context, ref string) bool {
	if r.base.Err() != nil {
		return false
	}

	if !r.inflight.Add(ref) {
		return false
	}

	lctx := logging.WithReference(r.base, ref)
	lg := logging.Logger(lctx, "payments").With().Str("func", "Reconciler.Start").Logger()

	var release func(context.Context)
	if r.lease != nil {
		rel, ok, err := r.lease.Acquire(ctx, leasePrefix+ref, r.window())
		switch {
		case err != nil:
			lg.Warn().Err(err).Msg("failed to acquire reconcile lease, polling without it")
		case !ok:
			lg.Debug().Msg("reconcile loop owned by another instance")
			r.inflight.Remove(ref)
			return false
		default:
			release = rel
		}
	}

	lctx, cancel := context.WithCancel(lctx)

	r.mu.Lock()
	r.cancels[ref] = cancel
	r.mu.Unlock()

	reconcileLoops.Inc()
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer reconcileLoops.Dec()
		defer r.done(ref, cancel, release)

		r.run(lctx, ref)
	}()

	return true
}

// Cancel stops the loop for ref, the payment itself is left as it is.
//
// A loop owned by another instance is revoked through the lease and stops at its next wake-up.
func (r *Reconciler) Cancel(ref string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[ref]
	delete(r.cancels, ref)
	r.mu.Unlock()

	if ok {
		cancel()
		return true
	}

	if r.lease == nil {
		return false
	}

	ctx, done := context.WithTimeout(r.base, leaseTimeout)
	defer done()

	lg := logging.Logger(logging.WithReference(ctx, ref), "payments").With().Str("func", "Reconciler.Cancel").Logger()

	held, err := r.lease.Held(ctx, leasePrefix+ref)
	if err != nil {
		lg.Warn().Err(err).Msg("failed to look up reconcile lease")
		return false
	}

	if !held {
		return false
	}

	if err := r.lease.Revoke(ctx, leasePrefix+ref, r.window()); err != nil {
		lg.Warn().Err(err).Msg("failed to revoke reconcile lease")
		return false
	}

	return true
}

// Active reports whether a loop for ref is running in this process.
func (r *Reconciler) Active(ref string) bool {
	return r.inflight.Contains(ref)
}

// Running reports whether a loop for ref is running in this process or holds the lease elsewhere.
// A lease that cannot be checked counts as running.
func (r *Reconciler) Running(ctx context.Context, ref string) bool {
	if r.Active(ref) {
		return true
	}

	if r.lease == nil {
		return false
	}

	held, err := r.lease.Held(ctx, leasePrefix+ref)
	if err != nil {
		logging.Logger(ctx, "payments").Warn().Err(err).Str("func", "Reconciler.Running").Str("reference", ref).
			Msg("failed to look up reconcile lease")
		return true
	}

	return held
}

func (r *Reconciler) revoked(ctx context.Context, ref string) bool {
	if r.lease == nil {
		return false
	}

	lctx, done := context.WithTimeout(ctx, leaseTimeout)
	defer done()

	ok, err := r.lease.Revoked(lctx, leasePrefix+ref)
	return err == nil && ok
}

// Stop cancels every loop and waits for them to return.
func (r *Reconciler) Stop() {
	r.stop()
	r.wg.Wait()
}

func (r *Reconciler) window() time.Duration {
	return r.interval*time.Duration(r.maxAttempts) + r.interval
}

func (r *Reconciler) run(ctx context.Context, ref string) {
	lg := logging.Logger(ctx, "payments").With().Str("func", "Reconciler.run").Logger()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		timer := time.NewTimer(r.interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			lg.Debug().Int("attempt", attempt).Msg("reconcile loop cancelled")
			return
		case <-timer.C:
		}

		// A cancel may land while the timer fires.
		if ctx.Err() != nil {
			return
		}

		if r.revoked(ctx, ref) {
			lg.Debug().Int("attempt", attempt).Msg("reconcile loop revoked")
			return
		}

		terminal, err := r.poll(ctx, ref)
		if err != nil {
			lg.Warn().Err(err).Int("attempt", attempt).Msg("reconcile attempt failed")
		}

		if terminal {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	lg.Info().Int("attempts", r.maxAttempts).Msg("reconcile attempts exhausted")

	if err := r.expire(ctx, ref); err != nil {
		lg.Error().Err(err).Msg("failed to expire payment")
	}
}

func (r *Reconciler) done(ref string, cancel context.CancelFunc, release func(context.Context)) {
	r.mu.Lock()
	delete(r.cancels, ref)
	r.mu.Unlock()

	cancel()

	if release != nil {
		ctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		release(ctx)
		rcancel()
	}

	r.inflight.Remove(ref)
}
