package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/etruckzm/etruck-go/services/payments/model"
)

type ECard struct{}

func NewECard() *ECard { return &ECard{} }

// Create issues a card for req.PaymentReference.
//
// Issuing twice for the same payment returns the card issued first.
func (r *ECard) Create(ctx context.Context, dbi sqlx.QueryerContext, req model.ECardNew) (*model.ECard, error) {
	const q = `INSERT INTO ecards
		(id, card_id, payment_reference, driver_name, license_number, status, issued_at, expires_at, signature)
	VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $8)
	ON CONFLICT (payment_reference) DO UPDATE SET payment_reference = EXCLUDED.payment_reference
	RETURNING id, card_id, payment_reference, driver_name, license_number, status, issued_at, expires_at, signature, created_at`

	result := &model.ECard{}
	if err := dbi.QueryRowxContext(
		ctx,
		q,
		uuid.NewV4(),
		req.CardID,
		req.PaymentReference,
		req.DriverName,
		req.LicenseNumber,
		req.IssuedAt.UTC(),
		req.ExpiresAt.UTC(),
		req.Signature,
	).StructScan(result); err != nil {
		return nil, err
	}

	return result, nil
}

// GetByCardID retrieves the card with the printed id cardID.
func (r *ECard) GetByCardID(ctx context.Context, dbi sqlx.QueryerContext, cardID string) (*model.ECard, error) {
	const q = `SELECT id, card_id, payment_reference, driver_name, license_number, status, issued_at, expires_at, signature, created_at
	FROM ecards WHERE card_id = $1`

	return r.getOne(ctx, dbi, q, cardID)
}

// GetByPaymentReference retrieves the card issued for the payment ref.
func (r *ECard) GetByPaymentReference(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.ECard, error) {
	const q = `SELECT id, card_id, payment_reference, driver_name, license_number, status, issued_at, expires_at, signature, created_at
	FROM ecards WHERE payment_reference = $1`

	return r.getOne(ctx, dbi, q, ref)
}

func (r *ECard) getOne(ctx context.Context, dbi sqlx.QueryerContext, q string, arg string) (*model.ECard, error) {
	result := &model.ECard{}
	if err := sqlx.GetContext(ctx, dbi, result, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrECardNotFound
		}

		return nil, err
	}

	return result, nil
}
