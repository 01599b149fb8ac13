// Package payments implements the payment lifecycle: initiation, verification,
// reconciliation of asynchronous confirmations and the side effects of paid services.
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"

	"github.com/etruckzm/etruck-go/libs/httpsignature"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
	"github.com/etruckzm/etruck-go/services/payments/storage/repository"
)

type paymentStore interface {
	Create(ctx context.Context, dbi sqlx.QueryerContext, req model.RecordNew) (*model.Record, error)
	GetByReference(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.Record, error)
	MarkPending(ctx context.Context, dbi sqlx.QueryerContext, ref, providerRef string, raw model.RawPayload) (*model.Record, error)
	Transition(ctx context.Context, dbi sqlx.QueryerContext, ref string, req model.TransitionRequest) (*model.Record, error)
	UpdateRawPayload(ctx context.Context, dbi sqlx.ExecerContext, ref string, raw model.RawPayload) error
	IncrementPollAttempts(ctx context.Context, dbi sqlx.QueryerContext, ref string) (int, error)
	SetDispatchError(ctx context.Context, dbi sqlx.ExecerContext, ref, reason string) error
	ClearDispatchError(ctx context.Context, dbi sqlx.ExecerContext, ref string) error
	ListDispatchFailed(ctx context.Context, dbi sqlx.QueryerContext, before time.Time, limit int) ([]model.Record, error)
	ListStale(ctx context.Context, dbi sqlx.QueryerContext, before time.Time, limit int) ([]model.Record, error)
}

// dbExecer is what the stores need from the database handle.
type dbExecer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Service is the payment core.
type Service struct {
	cfg        Config
	db         dbExecer
	payments   paymentStore
	ecards     ecardStore
	renewals   renewalStore
	gateways   *gateway.Registry
	dispatcher *Dispatcher
	reconciler *Reconciler
	ecardKey   httpsignature.HMACKey
	now        func() time.Time
}

// NewService wires the Postgres stores into a Service.
// events and lease may be nil.
func NewService(ctx context.Context, cfg Config, db *sqlx.DB, gateways *gateway.Registry, events Publisher, lease Lease) *Service {
	return newService(ctx, cfg, db, repository.NewPayment(), repository.NewECard(), repository.NewRenewal(), gateways, events, lease)
}

func newService(
	ctx context.Context,
	cfg Config,
	db dbExecer,
	payments paymentStore,
	ecards ecardStore,
	renewals renewalStore,
	gateways *gateway.Registry,
	events Publisher,
	lease Lease,
) *Service {
	cfg = cfg.withDefaults()

	s := &Service{
		cfg:      cfg,
		db:       db,
		payments: payments,
		ecards:   ecards,
		renewals: renewals,
		gateways: gateways,
		ecardKey: httpsignature.HMACKey(cfg.ECardSigningKey),
		now:      time.Now,
	}

	now := func() time.Time { return s.now() }

	renewal := &RenewalRecorder{db: db, repo: renewals, validity: cfg.RenewalValidity, now: now}

	s.dispatcher = NewDispatcher(map[model.Category]Effect{
		model.CategoryECard: &ECardActivator{
			db:       db,
			repo:     ecards,
			key:      s.ecardKey,
			validity: cfg.ECardValidity,
			now:      now,
		},
		model.CategoryRoadTax:        renewal,
		model.CategoryInsurance:      renewal,
		model.CategoryLicenseRenewal: renewal,
	}, events)

	s.reconciler = NewReconciler(ctx, cfg.ReconcileInterval, cfg.ReconcileMaxAttempts, s.pollOnce, s.expire, lease)

	return s
}

// Close stops every reconciliation loop.
func (s *Service) Close() {
	s.reconciler.Stop()
}

// Initiate creates a payment for req and starts it with the gateway serving req.Method.
//
// The record is stored before the gateway is called. A gateway failure moves it to failed
// and is returned as a *gateway.Error, the caller starts over with a new reference.
func (s *Service) Initiate(ctx context.Context, req model.InitiateRequest) (*model.InitiateResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	price, err := s.cfg.Prices.Lookup(req.Category)
	if err != nil {
		return nil, err
	}

	adapter, err := s.gateways.For(req.Method)
	if err != nil {
		return nil, err
	}

	ref, err := model.NewReference(s.now())
	if err != nil {
		return nil, err
	}

	ctx = logging.WithReference(ctx, ref)
	lg := logging.Logger(ctx, "payments").With().Str("func", "Initiate").Logger()

	rec, err := s.payments.Create(ctx, s.db, model.RecordNew{
		Reference: ref,
		Payer:     req.Payer,
		Category:  req.Category,
		Subject:   req.Subject,
		Amount:    price.Amount,
		Currency:  price.Currency,
		Method:    req.Method,
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateReference) {
			lg.Error().Err(err).Msg("generated reference already exists")
			sentry.CaptureException(err)
		}

		return nil, err
	}

	ack, err := adapter.Initiate(ctx, gateway.Request{
		Reference:   rec.Reference,
		Amount:      rec.Amount,
		Currency:    rec.Currency,
		Payer:       rec.Payer,
		Method:      rec.Method,
		Category:    rec.Category,
		Description: "Payment for " + rec.Category.String(),
	})
	if err != nil {
		gerr := asGatewayError(s.gateways.Provider(rec.Method), err)

		lg.Warn().Err(err).Str("kind", string(gerr.Kind)).Msg("gateway refused initiation")

		if _, terr := s.payments.Transition(ctx, s.db, rec.Reference, model.TransitionRequest{
			To:     model.StatusFailed,
			Reason: gerr.Reason(),
		}); terr != nil && !errors.Is(terr, model.ErrNoRowsChangedPayment) {
			lg.Error().Err(terr).Msg("failed to record initiation failure")
		} else if terr == nil {
			transitionsTotal.WithLabelValues(model.StatusFailed.String()).Inc()
		}

		return nil, gerr
	}

	updated, err := s.payments.MarkPending(ctx, s.db, rec.Reference, ack.ProviderRef, ack.Raw)
	switch {
	case errors.Is(err, model.ErrNoRowsChangedPayment):
		// A webhook got here first.
		if updated, err = s.payments.GetByReference(ctx, s.db, rec.Reference); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		transitionsTotal.WithLabelValues(updated.Status.String()).Inc()
	}

	if updated.Method.IsMobileMoney() && !updated.IsTerminal() {
		s.reconciler.Start(ctx, updated.Reference)
	}

	return &model.InitiateResult{Record: updated, RedirectHandle: ack.RedirectHandle}, nil
}

// Verify re-checks a payment with its gateway and applies a terminal outcome at most once.
//
// Terminal records and records the gateway never acknowledged are returned as they are.
// Gateway errors leave the record untouched, the reconciliation loop surfaces them by
// expiring the payment once its attempt budget is spent.
func (s *Service) Verify(ctx context.Context, ref string) (*model.Record, error) {
	rec, err := s.payments.GetByReference(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}

	if rec.IsTerminal() || rec.ProviderRef() == "" {
		return rec, nil
	}

	ctx = logging.WithReference(ctx, ref)
	lg := logging.Logger(ctx, "payments").With().Str("func", "Verify").Logger()

	adapter, err := s.gateways.For(rec.Method)
	if err != nil {
		return nil, err
	}

	res, err := adapter.Verify(ctx, rec.ProviderRef())
	if err != nil {
		lg.Warn().Err(err).Msg("gateway verification failed")
		return rec, nil
	}

	return s.applyOutcome(ctx, rec, res, "poll")
}

// Status returns the stored record without contacting the gateway.
func (s *Service) Status(ctx context.Context, ref string) (*model.Record, error) {
	return s.payments.GetByReference(ctx, s.db, ref)
}

// Watching reports whether a reconciliation loop is running for ref.
func (s *Service) Watching(ref string) bool {
	return s.reconciler.Active(ref)
}

// CancelWatch stops the reconciliation loop for ref.
func (s *Service) CancelWatch(ref string) bool {
	return s.reconciler.Cancel(ref)
}

// ApplyWebhook authenticates a provider callback and applies the outcome it reports.
//
// Only model.ErrInvalidSignature, model.ErrUnknownProvider and storage failures are returned.
// Unknown references, duplicates, ignored events and bodies that cannot be read are accepted
// without effect so that the caller's response does not tell whether a reference exists.
func (s *Service) ApplyWebhook(ctx context.Context, provider string, body []byte, header http.Header) error {
	provider = strings.ToLower(provider)

	lg := logging.Logger(ctx, "payments").With().Str("func", "ApplyWebhook").Str("provider", provider).Logger()

	parser, err := s.gateways.Webhook(provider)
	if err != nil {
		return err
	}

	res, err := parser.ParseWebhook(ctx, body, header)
	switch {
	case errors.Is(err, model.ErrInvalidSignature):
		webhookSignatureFailuresTotal.WithLabelValues(provider).Inc()
		lg.Warn().Msg("webhook signature mismatch")
		return model.ErrInvalidSignature
	case errors.Is(err, model.ErrIgnoredEvent):
		return nil
	case err != nil:
		lg.Warn().Err(err).Msg("unreadable webhook body")
		return nil
	}

	ctx = logging.WithReference(ctx, res.Reference)
	lg = lg.With().Str("reference", res.Reference).Logger()

	rec, err := s.payments.GetByReference(ctx, s.db, res.Reference)
	if err != nil {
		if errors.Is(err, model.ErrPaymentNotFound) {
			lg.Info().Msg("webhook for unknown reference")
			return nil
		}

		return err
	}

	if s.gateways.Provider(rec.Method) != provider {
		lg.Warn().Str("method", rec.Method.String()).Msg("webhook provider does not serve the payment method")
		return nil
	}

	if rec.IsTerminal() {
		lg.Debug().Str("status", rec.Status.String()).Msg("duplicate webhook for terminal payment")
		return nil
	}

	_, err = s.applyOutcome(ctx, rec, res, "webhook")

	return err
}

// applyOutcome is the only place a verified gateway result changes a record.
func (s *Service) applyOutcome(ctx context.Context, rec *model.Record, res *gateway.Result, source string) (*model.Record, error) {
	lg := logging.Logger(ctx, "payments").With().Str("func", "applyOutcome").Str("source", source).Logger()

	if !res.IsTerminal() {
		if len(res.Raw) > 0 {
			if err := s.payments.UpdateRawPayload(ctx, s.db, rec.Reference, res.Raw); err != nil &&
				!errors.Is(err, model.ErrNoRowsChangedPayment) {
				return nil, err
			}

			rec.RawGatewayPayload = res.Raw
		}

		return rec, nil
	}

	req := model.TransitionRequest{
		To:          res.Status(),
		Reason:      res.Reason,
		ProviderRef: res.ProviderRef,
		Raw:         res.Raw,
	}

	if req.To == model.StatusSucceeded && !res.Matches(rec.Amount, rec.Currency) {
		lg.Warn().
			Str("expected_amount", rec.Amount.String()).
			Str("expected_currency", rec.Currency).
			Str("reported_amount", res.Amount.String()).
			Str("reported_currency", res.Currency).
			Msg("gateway reported a different amount")

		req.To = model.StatusFailed
		req.Reason = model.ReasonAmountMismatch
	}

	if req.To == model.StatusFailed && req.Reason == "" {
		req.Reason = model.ReasonGatewayFailed
	}

	updated, err := s.payments.Transition(ctx, s.db, rec.Reference, req)
	if err != nil {
		if !errors.Is(err, model.ErrNoRowsChangedPayment) {
			return nil, err
		}

		current, err := s.payments.GetByReference(ctx, s.db, rec.Reference)
		if err != nil {
			return nil, err
		}

		discardedOutcomesTotal.WithLabelValues(source).Inc()
		lg.Info().
			Str("status", current.Status.String()).
			Str("discarded", req.To.String()).
			Msg("payment already terminal, discarding outcome")

		return current, nil
	}

	transitionsTotal.WithLabelValues(updated.Status.String()).Inc()
	lg.Info().Str("status", updated.Status.String()).Msg("payment status changed")

	if updated.Status == model.StatusSucceeded {
		// The effect must not be cut short by the caller going away or by the loop that polled this outcome.
		// A failure is already on the record for the retry job.
		_ = s.dispatch(context.WithoutCancel(ctx), updated)
	}

	s.reconciler.Cancel(updated.Reference)

	return updated, nil
}

// dispatch runs the side effect of rec.
// A failure is recorded on the payment for the retry job and returned.
func (s *Service) dispatch(ctx context.Context, rec *model.Record) error {
	lg := logging.Logger(ctx, "payments").With().Str("func", "dispatch").Logger()

	if err := s.dispatcher.OnPaymentSucceeded(ctx, rec); err != nil {
		dispatchFailuresTotal.WithLabelValues(rec.Category.String()).Inc()
		lg.Error().Err(err).Msg("side effect failed, left for retry")
		sentry.CaptureException(err)

		if serr := s.payments.SetDispatchError(ctx, s.db, rec.Reference, err.Error()); serr != nil {
			lg.Error().Err(serr).Msg("failed to record dispatch error")
		}

		return err
	}

	if err := s.payments.ClearDispatchError(ctx, s.db, rec.Reference); err != nil {
		lg.Error().Err(err).Msg("failed to confirm dispatch")
	}

	return nil
}

func (s *Service) pollOnce(ctx context.Context, ref string) (bool, error) {
	if _, err := s.payments.IncrementPollAttempts(ctx, s.db, ref); err != nil {
		return false, err
	}

	rec, err := s.Verify(ctx, ref)
	if err != nil {
		return false, err
	}

	return rec.IsTerminal(), nil
}

func (s *Service) expire(ctx context.Context, ref string) error {
	_, err := s.payments.Transition(ctx, s.db, ref, model.TransitionRequest{
		To:     model.StatusExpired,
		Reason: model.ReasonAttemptsExceeded,
	})
	if err != nil {
		if errors.Is(err, model.ErrNoRowsChangedPayment) {
			return nil
		}

		return err
	}

	transitionsTotal.WithLabelValues(model.StatusExpired.String()).Inc()
	logging.Logger(ctx, "payments").Info().Str("func", "expire").Str("reference", ref).Msg("payment expired")

	return nil
}

// asGatewayError makes sure the caller always sees a classified gateway error.
func asGatewayError(provider string, err error) *gateway.Error {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		return gerr
	}

	return gateway.Protocol(provider, err)
}
