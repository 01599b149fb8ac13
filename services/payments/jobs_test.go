package payments

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/etruckzm/etruck-go/libs/datastore"
	errorutils "github.com/etruckzm/etruck-go/libs/errors"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

func succeededRecord(ref string, age time.Duration, dispatchErr string) *model.Record {
	rec := pendingRecord(ref, model.CategoryECard, model.MethodMobileMoneyA)
	rec.Status = model.StatusSucceeded
	rec.Dispatched = true
	rec.DispatchError = datastore.NewNullString(dispatchErr)
	rec.UpdatedAt = time.Now().Add(-age)

	return rec
}

func TestService_Jobs(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	jobs := env.svc.Jobs()
	must.Len(t, jobs, 2)

	should.Equal(t, "retry-dispatch", jobs[0].Name)
	should.Equal(t, time.Minute, jobs[0].Cadence)
	should.Equal(t, "sweep-stale", jobs[1].Name)
	should.Equal(t, 10*time.Second, jobs[1].Cadence)
}

func TestService_RetryDispatch(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	var fail atomic.Bool
	effects := int64(0)
	env.svc.dispatcher.effects[model.CategoryECard] = EffectFunc(func(_ context.Context, rec *model.Record) error {
		atomic.AddInt64(&effects, 1)
		if fail.Load() {
			return errors.New("card store down")
		}
		return nil
	})

	env.payments.put(succeededRecord("failed-old", 5*time.Minute, "model: dependent update failed"))
	env.payments.put(succeededRecord("pending-old", 5*time.Minute, model.DispatchPending))
	env.payments.put(succeededRecord("pending-fresh", 0, model.DispatchPending))
	env.payments.put(succeededRecord("done-old", 5*time.Minute, ""))

	fail.Store(true)

	attempted, err := env.svc.RetryDispatch(env.ctx)
	should.False(t, attempted)

	var merr *errorutils.MultiError
	must.ErrorAs(t, err, &merr)
	should.Equal(t, 2, merr.Count())
	should.ErrorContains(t, err, "card store down")
	should.Equal(t, int64(2), atomic.LoadInt64(&effects))
	should.Contains(t, env.payments.get("failed-old").DispatchError.String, "card store down")
	should.Contains(t, env.payments.get("pending-old").DispatchError.String, "card store down")

	fail.Store(false)

	_, err = env.svc.RetryDispatch(env.ctx)
	must.NoError(t, err)
	should.Equal(t, int64(4), atomic.LoadInt64(&effects))

	should.False(t, env.payments.get("failed-old").DispatchError.Valid)
	should.False(t, env.payments.get("pending-old").DispatchError.Valid)
	should.True(t, env.payments.get("pending-fresh").DispatchError.Valid)
	should.Equal(t, model.StatusSucceeded, env.payments.get("failed-old").Status)
}

func TestService_SweepStale(t *testing.T) {
	cfg := Config{ReconcileInterval: time.Hour, ReconcileMaxAttempts: 1}

	env := newTestEnv(t, cfg, nil)
	effects := countEffect(env, nil)

	old := func(ref string, method model.Method, age time.Duration) *model.Record {
		rec := pendingRecord(ref, model.CategoryECard, method)
		rec.UpdatedAt = time.Now().Add(-age)
		return rec
	}

	env.payments.put(old("mm-pending", model.MethodMobileMoneyA, 3*time.Hour))
	env.payments.put(old("mm-paid", model.MethodMobileMoneyB, 3*time.Hour))
	env.payments.put(old("mm-fresh", model.MethodMobileMoneyA, time.Minute))
	env.payments.put(old("mm-watched", model.MethodMobileMoneyA, 3*time.Hour))
	env.payments.put(old("card-open", model.MethodCard, 3*time.Hour))
	env.payments.put(old("card-abandoned", model.MethodCard, 25*time.Hour))

	env.momo.FnVerify = func(context.Context, string) (*gateway.Result, error) {
		return &gateway.Result{Kind: gateway.KindPending}, nil
	}
	env.flw.FnVerify = func(context.Context, string) (*gateway.Result, error) {
		return succeededResult("mm-paid"), nil
	}
	env.card.FnVerify = func(context.Context, string) (*gateway.Result, error) {
		return nil, gateway.NewUnavailable("stripe", context.DeadlineExceeded)
	}

	must.True(t, env.svc.reconciler.Start(env.ctx, "mm-watched"))

	attempted, err := env.svc.SweepStale(env.ctx)
	must.NoError(t, err)
	should.False(t, attempted)

	exp := map[string]model.Status{
		"mm-pending":     model.StatusExpired,
		"mm-paid":        model.StatusSucceeded,
		"mm-fresh":       model.StatusPendingConfirmation,
		"mm-watched":     model.StatusPendingConfirmation,
		"card-open":      model.StatusPendingConfirmation,
		"card-abandoned": model.StatusExpired,
	}

	for ref, status := range exp {
		should.Equal(t, status, env.payments.get(ref).Status, ref)
	}

	should.Equal(t, model.ReasonAttemptsExceeded, env.payments.get("mm-pending").FailureReason.String)
	should.Equal(t, int64(1), atomic.LoadInt64(effects))
}

func TestService_SweepStale_Errors(t *testing.T) {
	env := newTestEnv(t, Config{ReconcileInterval: time.Hour, ReconcileMaxAttempts: 1}, nil)

	rec := pendingRecord("mm-broken", model.CategoryRoadTax, model.MethodMobileMoneyA)
	rec.UpdatedAt = time.Now().Add(-3 * time.Hour)
	env.payments.put(rec)

	env.payments.failTransition = errors.New("connection reset")

	env.momo.FnVerify = func(context.Context, string) (*gateway.Result, error) {
		return &gateway.Result{Kind: gateway.KindPending}, nil
	}

	attempted, err := env.svc.SweepStale(env.ctx)
	should.False(t, attempted)

	var merr *errorutils.MultiError
	must.ErrorAs(t, err, &merr)
	should.Equal(t, 1, merr.Count())
	should.ErrorContains(t, err, "mm-broken")
	should.Equal(t, model.StatusPendingConfirmation, env.payments.get("mm-broken").Status)
}

func TestService_SweepStale_LoopOnOtherInstance(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	lease := NewRedisLease(rc, "test:")

	env := newTestEnv(t, Config{ReconcileInterval: time.Hour, ReconcileMaxAttempts: 1}, nil)
	env.svc.reconciler.lease = lease

	rec := pendingRecord("mm-remote", model.CategoryECard, model.MethodMobileMoneyA)
	rec.UpdatedAt = time.Now().Add(-3 * time.Hour)
	env.payments.put(rec)

	var verified int64
	env.momo.FnVerify = func(context.Context, string) (*gateway.Result, error) {
		atomic.AddInt64(&verified, 1)
		return &gateway.Result{Kind: gateway.KindPending}, nil
	}

	poll := func(context.Context, string) (bool, error) { return false, nil }
	ctx, other := newTestReconciler(t, time.Hour, 1, poll, nil, lease)
	must.True(t, other.Start(ctx, "mm-remote"))

	should.False(t, env.svc.Watching("mm-remote"))
	should.True(t, env.svc.reconciler.Running(env.ctx, "mm-remote"))

	_, err := env.svc.SweepStale(env.ctx)
	must.NoError(t, err)

	should.Equal(t, int64(0), atomic.LoadInt64(&verified))
	should.Equal(t, model.StatusPendingConfirmation, env.payments.get("mm-remote").Status)

	should.True(t, env.svc.CancelWatch("mm-remote"))
	should.True(t, mr.Exists("test:"+leasePrefix+"mm-remote"+revokedSuffix))
}
