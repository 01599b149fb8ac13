// Package repository provides access to data available in SQL-based data store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"

	"github.com/etruckzm/etruck-go/services/payments/model"
)

const pgCodeUniqueViolation = "23505"

const paymentColumns = `id, reference, payer_name, payer_email, payer_phone, category, subject,
	amount, currency, method, status, gateway_tx_id, failure_reason, raw_gateway_payload,
	dispatched, dispatch_error, poll_attempts, created_at, updated_at`

type Payment struct{}

func NewPayment() *Payment { return &Payment{} }

// Create inserts a new record in status initiated.
//
// A reference that already exists yields model.ErrDuplicateReference.
func (r *Payment) Create(ctx context.Context, dbi sqlx.QueryerContext, req model.RecordNew) (*model.Record, error) {
	const q = `INSERT INTO payments
		(id, reference, payer_name, payer_email, payer_phone, category, subject, amount, currency, method, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'initiated')
	RETURNING ` + paymentColumns

	result := &model.Record{}
	if err := dbi.QueryRowxContext(
		ctx,
		q,
		uuid.NewV4(),
		req.Reference,
		req.Payer.Name,
		req.Payer.Email,
		req.Payer.Phone,
		req.Category,
		req.Subject,
		req.Amount,
		req.Currency,
		req.Method,
	).StructScan(result); err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrDuplicateReference
		}

		return nil, err
	}

	return result, nil
}

// GetByReference retrieves the record for ref.
func (r *Payment) GetByReference(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.Record, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`

	return r.getOne(ctx, dbi, q, ref)
}

// MarkPending moves an initiated record to pending-confirmation and stores the provider reference.
func (r *Payment) MarkPending(ctx context.Context, dbi sqlx.QueryerContext, ref, providerRef string, raw model.RawPayload) (*model.Record, error) {
	const q = `UPDATE payments
	SET status = 'pending-confirmation',
		gateway_tx_id = NULLIF($2, ''),
		raw_gateway_payload = COALESCE($3::jsonb, raw_gateway_payload),
		updated_at = now()
	WHERE reference = $1 AND status = 'initiated'
	RETURNING ` + paymentColumns

	return r.updateOne(ctx, dbi, q, ref, providerRef, raw)
}

// Transition moves the record to req.To if, and only if, its current status may move there.
//
// The check and the write happen in one statement, of two concurrent callers exactly one
// succeeds and the other gets model.ErrNoRowsChangedPayment.
// Moving to succeeded sets dispatched in the same write and marks the dispatch as pending
// until ClearDispatchError confirms the side effect.
func (r *Payment) Transition(ctx context.Context, dbi sqlx.QueryerContext, ref string, req model.TransitionRequest) (*model.Record, error) {
	const q = `UPDATE payments
	SET status = $2,
		failure_reason = NULLIF($3, ''),
		raw_gateway_payload = COALESCE($4::jsonb, raw_gateway_payload),
		dispatched = (dispatched OR $2 = 'succeeded'),
		dispatch_error = CASE WHEN $2 = 'succeeded' THEN $7 ELSE dispatch_error END,
		gateway_tx_id = COALESCE(gateway_tx_id, NULLIF($5, '')),
		updated_at = now()
	WHERE reference = $1 AND status = ANY($6::text[])
	RETURNING ` + paymentColumns

	from := model.SourcesOf(req.To)
	if len(from) == 0 {
		return nil, model.ErrInvalidTransition
	}

	return r.updateOne(ctx, dbi, q, ref, req.To, req.Reason, req.Raw, req.ProviderRef, pq.Array(from), model.DispatchPending)
}

// UpdateRawPayload replaces the stored provider payload of a non-terminal record, updated_at is left alone.
func (r *Payment) UpdateRawPayload(ctx context.Context, dbi sqlx.ExecerContext, ref string, raw model.RawPayload) error {
	const q = `UPDATE payments SET raw_gateway_payload = $2::jsonb
	WHERE reference = $1 AND status = ANY($3::text[])`

	return r.execUpdate(ctx, dbi, q, ref, raw, pq.Array(model.NonTerminalStatuses()))
}

// IncrementPollAttempts counts one reconciliation attempt and returns the new count.
func (r *Payment) IncrementPollAttempts(ctx context.Context, dbi sqlx.QueryerContext, ref string) (int, error) {
	const q = `UPDATE payments SET poll_attempts = poll_attempts + 1
	WHERE reference = $1
	RETURNING poll_attempts`

	var result int
	if err := sqlx.GetContext(ctx, dbi, &result, q, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, model.ErrPaymentNotFound
		}

		return 0, err
	}

	return result, nil
}

// SetDispatchError records why the side effect of a succeeded record failed.
func (r *Payment) SetDispatchError(ctx context.Context, dbi sqlx.ExecerContext, ref, reason string) error {
	const q = `UPDATE payments SET dispatch_error = $2 WHERE reference = $1 AND status = 'succeeded'`

	return r.execUpdate(ctx, dbi, q, ref, reason)
}

// ClearDispatchError marks the side effect of a succeeded record as applied.
func (r *Payment) ClearDispatchError(ctx context.Context, dbi sqlx.ExecerContext, ref string) error {
	const q = `UPDATE payments SET dispatch_error = NULL WHERE reference = $1 AND status = 'succeeded'`

	return r.execUpdate(ctx, dbi, q, ref)
}

// ListDispatchFailed returns up to limit succeeded records whose side effect is outstanding
// and that succeeded before before, oldest first.
func (r *Payment) ListDispatchFailed(ctx context.Context, dbi sqlx.QueryerContext, before time.Time, limit int) ([]model.Record, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments
	WHERE status = 'succeeded' AND dispatch_error IS NOT NULL AND updated_at < $1
	ORDER BY updated_at ASC
	LIMIT $2`

	result := make([]model.Record, 0)
	if err := sqlx.SelectContext(ctx, dbi, &result, q, before, limit); err != nil {
		return nil, err
	}

	return result, nil
}

// ListStale returns up to limit non-terminal records not updated since before.
func (r *Payment) ListStale(ctx context.Context, dbi sqlx.QueryerContext, before time.Time, limit int) ([]model.Record, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments
	WHERE status = ANY($1::text[]) AND updated_at < $2
	ORDER BY updated_at ASC
	LIMIT $3`

	result := make([]model.Record, 0)
	if err := sqlx.SelectContext(ctx, dbi, &result, q, pq.Array(model.NonTerminalStatuses()), before, limit); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Payment) getOne(ctx context.Context, dbi sqlx.QueryerContext, q string, args ...interface{}) (*model.Record, error) {
	result := &model.Record{}
	if err := sqlx.GetContext(ctx, dbi, result, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPaymentNotFound
		}

		return nil, err
	}

	return result, nil
}

func (r *Payment) updateOne(ctx context.Context, dbi sqlx.QueryerContext, q string, args ...interface{}) (*model.Record, error) {
	result := &model.Record{}
	if err := dbi.QueryRowxContext(ctx, q, args...).StructScan(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoRowsChangedPayment
		}

		return nil, err
	}

	return result, nil
}

func (r *Payment) execUpdate(ctx context.Context, dbi sqlx.ExecerContext, q string, args ...interface{}) error {
	result, err := dbi.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}

	numAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if numAffected == 0 {
		return model.ErrNoRowsChangedPayment
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgCodeUniqueViolation
}
