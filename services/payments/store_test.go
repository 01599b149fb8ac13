package payments

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"

	"github.com/etruckzm/etruck-go/libs/backoff/retrypolicy"
	"github.com/etruckzm/etruck-go/libs/datastore"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// memPayments mirrors the conditional updates of repository.Payment under one mutex.
type memPayments struct {
	mu   sync.Mutex
	recs map[string]*model.Record
	now  func() time.Time

	transitions int
	// failTransition makes Transition fail when set.
	failTransition error
}

func newMemPayments() *memPayments {
	return &memPayments{recs: make(map[string]*model.Record), now: time.Now}
}

func (m *memPayments) Create(_ context.Context, _ sqlx.QueryerContext, req model.RecordNew) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.recs[req.Reference]; ok {
		return nil, model.ErrDuplicateReference
	}

	now := m.now()
	rec := &model.Record{
		ID:        uuid.NewV4(),
		Reference: req.Reference,
		Payer:     req.Payer,
		Category:  req.Category,
		Subject:   req.Subject,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Status:    model.StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.recs[req.Reference] = rec

	return copyRecord(rec), nil
}

func (m *memPayments) GetByReference(_ context.Context, _ sqlx.QueryerContext, ref string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok {
		return nil, model.ErrPaymentNotFound
	}

	return copyRecord(rec), nil
}

func (m *memPayments) MarkPending(_ context.Context, _ sqlx.QueryerContext, ref, providerRef string, raw model.RawPayload) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok || rec.Status != model.StatusInitiated {
		return nil, model.ErrNoRowsChangedPayment
	}

	rec.Status = model.StatusPendingConfirmation
	rec.GatewayTransactionID = datastore.NewNullString(providerRef)
	if len(raw) > 0 {
		rec.RawGatewayPayload = raw
	}
	rec.UpdatedAt = m.now()

	return copyRecord(rec), nil
}

func (m *memPayments) Transition(_ context.Context, _ sqlx.QueryerContext, ref string, req model.TransitionRequest) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failTransition != nil {
		return nil, m.failTransition
	}

	if len(model.SourcesOf(req.To)) == 0 {
		return nil, model.ErrInvalidTransition
	}

	rec, ok := m.recs[ref]
	if !ok || !rec.Status.CanTransitionTo(req.To) {
		return nil, model.ErrNoRowsChangedPayment
	}

	rec.Status = req.To
	rec.FailureReason = datastore.NewNullString(req.Reason)
	if len(req.Raw) > 0 {
		rec.RawGatewayPayload = req.Raw
	}
	if req.To == model.StatusSucceeded {
		rec.Dispatched = true
		rec.DispatchError = datastore.NewNullString(model.DispatchPending)
	}
	if !rec.GatewayTransactionID.Valid {
		rec.GatewayTransactionID = datastore.NewNullString(req.ProviderRef)
	}
	rec.UpdatedAt = m.now()
	m.transitions++

	return copyRecord(rec), nil
}

func (m *memPayments) UpdateRawPayload(_ context.Context, _ sqlx.ExecerContext, ref string, raw model.RawPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok || rec.IsTerminal() {
		return model.ErrNoRowsChangedPayment
	}

	rec.RawGatewayPayload = raw

	return nil
}

func (m *memPayments) IncrementPollAttempts(_ context.Context, _ sqlx.QueryerContext, ref string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok {
		return 0, model.ErrPaymentNotFound
	}

	rec.PollAttempts++

	return rec.PollAttempts, nil
}

func (m *memPayments) SetDispatchError(_ context.Context, _ sqlx.ExecerContext, ref, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok || rec.Status != model.StatusSucceeded {
		return model.ErrNoRowsChangedPayment
	}

	rec.DispatchError = datastore.NewNullString(reason)

	return nil
}

func (m *memPayments) ClearDispatchError(_ context.Context, _ sqlx.ExecerContext, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok || rec.Status != model.StatusSucceeded {
		return model.ErrNoRowsChangedPayment
	}

	rec.DispatchError = datastore.NullString{}

	return nil
}

func (m *memPayments) ListDispatchFailed(_ context.Context, _ sqlx.QueryerContext, before time.Time, limit int) ([]model.Record, error) {
	return m.list(limit, func(rec *model.Record) bool {
		return rec.Status == model.StatusSucceeded && rec.DispatchError.Valid && rec.UpdatedAt.Before(before)
	}), nil
}

func (m *memPayments) ListStale(_ context.Context, _ sqlx.QueryerContext, before time.Time, limit int) ([]model.Record, error) {
	return m.list(limit, func(rec *model.Record) bool {
		return !rec.IsTerminal() && rec.UpdatedAt.Before(before)
	}), nil
}

func (m *memPayments) list(limit int, keep func(rec *model.Record) bool) []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]model.Record, 0)
	for _, rec := range m.recs {
		if keep(rec) {
			result = append(result, *copyRecord(rec))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })

	if len(result) > limit {
		result = result[:limit]
	}

	return result
}

// put stores rec as is, for tests that need a record in a given state.
func (m *memPayments) put(rec *model.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recs[rec.Reference] = copyRecord(rec)
}

func (m *memPayments) get(ref string) *model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[ref]
	if !ok {
		return nil
	}

	return copyRecord(rec)
}

func (m *memPayments) transitionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.transitions
}

type memECards struct {
	mu    sync.Mutex
	cards map[string]*model.ECard
}

func newMemECards() *memECards {
	return &memECards{cards: make(map[string]*model.ECard)}
}

func (m *memECards) Create(_ context.Context, _ sqlx.QueryerContext, req model.ECardNew) (*model.ECard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cards {
		if c.PaymentReference == req.PaymentReference {
			result := *c
			return &result, nil
		}
	}

	card := &model.ECard{
		ID:               uuid.NewV4(),
		CardID:           req.CardID,
		PaymentReference: req.PaymentReference,
		DriverName:       req.DriverName,
		LicenseNumber:    req.LicenseNumber,
		Status:           model.ECardStatusActive,
		IssuedAt:         req.IssuedAt,
		ExpiresAt:        req.ExpiresAt,
		Signature:        req.Signature,
		CreatedAt:        time.Now(),
	}
	m.cards[card.CardID] = card

	result := *card
	return &result, nil
}

func (m *memECards) GetByCardID(_ context.Context, _ sqlx.QueryerContext, cardID string) (*model.ECard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cards[cardID]
	if !ok {
		return nil, model.ErrECardNotFound
	}

	result := *c
	return &result, nil
}

func (m *memECards) GetByPaymentReference(_ context.Context, _ sqlx.QueryerContext, ref string) (*model.ECard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cards {
		if c.PaymentReference == ref {
			result := *c
			return &result, nil
		}
	}

	return nil, model.ErrECardNotFound
}

func (m *memECards) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.cards)
}

type memRenewals struct {
	mu       sync.Mutex
	renewals map[string]model.Renewal
}

func newMemRenewals() *memRenewals {
	return &memRenewals{renewals: make(map[string]model.Renewal)}
}

func (m *memRenewals) Create(_ context.Context, _ sqlx.QueryerContext, req model.Renewal) (*model.Renewal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.renewals[req.PaymentReference]; ok {
		return &r, nil
	}

	req.ID = uuid.NewV4()
	req.CreatedAt = time.Now()
	m.renewals[req.PaymentReference] = req

	return &req, nil
}

func (m *memRenewals) ListBySubject(_ context.Context, _ sqlx.QueryerContext, subject string) ([]model.Renewal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]model.Renewal, 0)
	for _, r := range m.renewals {
		if r.Subject == subject {
			result = append(result, r)
		}
	}

	return result, nil
}

func copyRecord(rec *model.Record) *model.Record {
	result := *rec
	if rec.RawGatewayPayload != nil {
		result.RawGatewayPayload = append(model.RawPayload(nil), rec.RawGatewayPayload...)
	}

	return &result
}

type testEnv struct {
	ctx      context.Context
	svc      *Service
	payments *memPayments
	ecards   *memECards
	renewals *memRenewals
	momo     *gateway.MockAdapter
	flw      *gateway.MockAdapter
	card     *gateway.MockAdapter
}

func newTestEnv(t *testing.T, cfg Config, events Publisher) *testEnv {
	t.Helper()

	ctx, _ := logging.SetupLoggerWithLevel(context.Background(), zerolog.WarnLevel)

	env := &testEnv{
		ctx:      ctx,
		payments: newMemPayments(),
		ecards:   newMemECards(),
		renewals: newMemRenewals(),
		momo:     &gateway.MockAdapter{},
		flw:      &gateway.MockAdapter{},
		card:     &gateway.MockAdapter{},
	}

	reg := gateway.NewRegistry()
	reg.Register("momo", env.momo, model.MethodMobileMoneyA)
	reg.Register("flutterwave", env.flw, model.MethodMobileMoneyB, model.MethodMobileMoneyC)
	reg.Register("stripe", env.card, model.MethodCard)

	if cfg.ECardSigningKey == "" {
		cfg.ECardSigningKey = "ecard-test-key"
	}

	env.svc = newService(ctx, cfg, nil, env.payments, env.ecards, env.renewals, reg, events, nil)
	env.svc.dispatcher.retry = retrypolicy.NoRetry

	t.Cleanup(env.svc.Close)

	return env
}
