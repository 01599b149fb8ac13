package payments

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shengdoushi/base58"

	"github.com/etruckzm/etruck-go/libs/httpsignature"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

type ecardStore interface {
	Create(ctx context.Context, dbi sqlx.QueryerContext, req model.ECardNew) (*model.ECard, error)
	GetByCardID(ctx context.Context, dbi sqlx.QueryerContext, cardID string) (*model.ECard, error)
	GetByPaymentReference(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.ECard, error)
}

type renewalStore interface {
	Create(ctx context.Context, dbi sqlx.QueryerContext, req model.Renewal) (*model.Renewal, error)
	ListBySubject(ctx context.Context, dbi sqlx.QueryerContext, subject string) ([]model.Renewal, error)
}

// ECardActivator issues a signed, active e-card for a paid e-card payment.
type ECardActivator struct {
	db       sqlx.QueryerContext
	repo     ecardStore
	key      httpsignature.HMACKey
	validity time.Duration
	now      func() time.Time
}

func (a *ECardActivator) Apply(ctx context.Context, rec *model.Record) error {
	license := strings.TrimSpace(rec.Subject)
	if license == "" {
		return model.ErrSubjectRequired
	}

	cardID, err := newCardID()
	if err != nil {
		return err
	}

	issued := a.now().UTC().Truncate(time.Second)
	expires := issued.Add(a.validity)

	sig, err := a.key.SignHex(model.CanonicalECardFields(cardID, rec.Payer.Name, license, issued, expires))
	if err != nil {
		return err
	}

	card, err := a.repo.Create(ctx, a.db, model.ECardNew{
		CardID:           cardID,
		PaymentReference: rec.Reference,
		DriverName:       rec.Payer.Name,
		LicenseNumber:    license,
		IssuedAt:         issued,
		ExpiresAt:        expires,
		Signature:        sig,
	})
	if err != nil {
		return err
	}

	logging.Logger(ctx, "payments").Info().
		Str("func", "ECardActivator.Apply").
		Str("card_id", card.CardID).
		Time("expires_at", card.ExpiresAt).
		Msg("e-card activated")

	return nil
}

// RenewalRecorder records a compliance renewal for road tax, insurance and licence payments.
type RenewalRecorder struct {
	db       sqlx.QueryerContext
	repo     renewalStore
	validity time.Duration
	now      func() time.Time
}

func (r *RenewalRecorder) Apply(ctx context.Context, rec *model.Record) error {
	from := r.now().UTC().Truncate(time.Second)

	_, err := r.repo.Create(ctx, r.db, model.Renewal{
		PaymentReference: rec.Reference,
		Category:         rec.Category,
		Subject:          subjectOf(rec),
		ValidFrom:        from,
		ValidUntil:       from.Add(r.validity),
	})

	return err
}

// subjectOf falls back to the payer's phone when the payment named no subject.
func subjectOf(rec *model.Record) string {
	if s := strings.TrimSpace(rec.Subject); s != "" {
		return s
	}
	return rec.Payer.Phone
}

func newCardID() (string, error) {
	var buf [10]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}

	return "EC-" + base58.Encode(buf[:], base58.BitcoinAlphabet), nil
}
