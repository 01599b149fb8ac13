package payments

import (
	"context"
	"fmt"
	"time"

	errorutils "github.com/etruckzm/etruck-go/libs/errors"
	"github.com/etruckzm/etruck-go/libs/logging"
	srv "github.com/etruckzm/etruck-go/libs/service"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// Jobs implements srv.JobService.
func (s *Service) Jobs() []srv.Job {
	return []srv.Job{
		{
			Name:    "retry-dispatch",
			Func:    s.RetryDispatch,
			Cadence: s.cfg.DispatchGrace,
			Workers: 1,
		},
		{
			Name:    "sweep-stale",
			Func:    s.SweepStale,
			Cadence: s.cfg.ReconcileInterval,
			Workers: 1,
		},
	}
}

// RetryDispatch re-runs the side effects of succeeded payments whose dispatch failed
// or was never confirmed. Effects are idempotent so a record may be dispatched twice.
//
// Records that fail again are returned together as a *errorutils.MultiError.
func (s *Service) RetryDispatch(ctx context.Context) (bool, error) {
	lg := logging.Logger(ctx, "payments").With().Str("func", "RetryDispatch").Logger()

	recs, err := s.payments.ListDispatchFailed(ctx, s.db, s.now().Add(-s.cfg.DispatchGrace), s.cfg.JobBatch)
	if err != nil {
		return false, err
	}

	var (
		done int
		merr = &errorutils.MultiError{}
	)

	for i := range recs {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		rctx := logging.WithReference(ctx, recs[i].Reference)
		if err := s.dispatch(rctx, &recs[i]); err != nil {
			merr.Append(fmt.Errorf("failed to dispatch %s: %w", recs[i].Reference, err))
			continue
		}

		done++
	}

	if len(recs) > 0 {
		lg.Info().Int("found", len(recs)).Int("dispatched", done).Msg("retried pending dispatches")
	}

	return done > 0 && len(recs) == s.cfg.JobBatch, merr.ErrOrNil()
}

// SweepStale finishes payments nobody is watching anymore, such as loops lost to a restart.
// Each one is verified a last time and expired when still not terminal.
func (s *Service) SweepStale(ctx context.Context) (bool, error) {
	lg := logging.Logger(ctx, "payments").With().Str("func", "SweepStale").Logger()

	now := s.now()

	recs, err := s.payments.ListStale(ctx, s.db, now.Add(-s.cfg.reconcileWindow()), s.cfg.JobBatch)
	if err != nil {
		return false, err
	}

	var (
		swept int
		merr  = &errorutils.MultiError{}
	)

	for i := range recs {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		rec := &recs[i]
		if !s.isStale(ctx, rec, now) {
			continue
		}

		rctx := logging.WithReference(ctx, rec.Reference)

		updated, err := s.Verify(rctx, rec.Reference)
		if err != nil {
			merr.Append(fmt.Errorf("failed to verify stale payment %s: %w", rec.Reference, err))
			continue
		}

		if !updated.IsTerminal() {
			if err := s.expire(rctx, rec.Reference); err != nil {
				merr.Append(fmt.Errorf("failed to expire stale payment %s: %w", rec.Reference, err))
				continue
			}
		}

		swept++
	}

	if swept > 0 {
		lg.Info().Int("swept", swept).Msg("finished stale payments")
	}

	return swept > 0 && len(recs) == s.cfg.JobBatch, merr.ErrOrNil()
}

// isStale reports whether nobody, here or on another instance, is still polling rec.
func (s *Service) isStale(ctx context.Context, rec *model.Record, now time.Time) bool {
	if s.reconciler.Running(ctx, rec.Reference) {
		return false
	}

	if rec.Method == model.MethodCard {
		return now.Sub(rec.UpdatedAt) >= s.cfg.CardStaleAfter
	}

	return true
}
