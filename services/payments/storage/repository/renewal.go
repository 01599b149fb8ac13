package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/etruckzm/etruck-go/services/payments/model"
)

type Renewal struct{}

func NewRenewal() *Renewal { return &Renewal{} }

// Create records the renewal paid for by req.PaymentReference, repeating it returns the first row.
func (r *Renewal) Create(ctx context.Context, dbi sqlx.QueryerContext, req model.Renewal) (*model.Renewal, error) {
	const q = `INSERT INTO renewals
		(id, payment_reference, category, subject, valid_from, valid_until)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (payment_reference) DO UPDATE SET payment_reference = EXCLUDED.payment_reference
	RETURNING id, payment_reference, category, subject, valid_from, valid_until, created_at`

	result := &model.Renewal{}
	if err := dbi.QueryRowxContext(
		ctx,
		q,
		uuid.NewV4(),
		req.PaymentReference,
		req.Category,
		req.Subject,
		req.ValidFrom.UTC(),
		req.ValidUntil.UTC(),
	).StructScan(result); err != nil {
		return nil, err
	}

	return result, nil
}

// ListBySubject returns the renewals of subject, latest first.
func (r *Renewal) ListBySubject(ctx context.Context, dbi sqlx.QueryerContext, subject string) ([]model.Renewal, error) {
	const q = `SELECT id, payment_reference, category, subject, valid_from, valid_until, created_at
	FROM renewals WHERE subject = $1
	ORDER BY valid_until DESC`

	result := make([]model.Renewal, 0)
	if err := sqlx.SelectContext(ctx, dbi, &result, q, subject); err != nil {
		return nil, err
	}

	return result, nil
}
