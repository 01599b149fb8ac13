package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// GetECard returns the card issued under cardID.
func (s *Service) GetECard(ctx context.Context, cardID string) (*model.ECard, error) {
	return s.ecards.GetByCardID(ctx, s.db, strings.TrimSpace(cardID))
}

// GetECardForPayment returns the card issued for the payment ref.
func (s *Service) GetECardForPayment(ctx context.Context, ref string) (*model.ECard, error) {
	return s.ecards.GetByPaymentReference(ctx, s.db, ref)
}

// ListRenewals returns the renewals recorded for subject.
func (s *Service) ListRenewals(ctx context.Context, subject string) ([]model.Renewal, error) {
	return s.renewals.ListBySubject(ctx, s.db, strings.TrimSpace(subject))
}

// VerifyECard checks a scanned card against the stored one.
// The outcome of the check is reported in the result, only storage failures are returned as errors.
func (s *Service) VerifyECard(ctx context.Context, qr model.ECardQR) (*model.ECardVerification, error) {
	lg := logging.Logger(ctx, "payments").With().Str("func", "VerifyECard").Str("card_id", qr.ID).Logger()

	card, err := s.ecards.GetByCardID(ctx, s.db, qr.ID)
	if err != nil {
		if errors.Is(err, model.ErrECardNotFound) {
			return &model.ECardVerification{Reason: model.ECardReasonNotFound}, nil
		}
		return nil, err
	}

	msg := model.CanonicalECardFields(qr.ID, qr.Driver, qr.License, qr.Issued, qr.Expires)

	ok, err := s.ecardKey.VerifyHex(msg, qr.Sig)
	if err != nil || !ok {
		lg.Warn().Msg("e-card signature mismatch")
		return &model.ECardVerification{Reason: model.ECardReasonInvalidSignature}, nil
	}

	if qr.Driver != card.DriverName ||
		qr.License != card.LicenseNumber ||
		!qr.Issued.Equal(card.IssuedAt) ||
		!qr.Expires.Equal(card.ExpiresAt) {
		lg.Warn().Msg("e-card details do not match the issued card")
		return &model.ECardVerification{Reason: model.ECardReasonMismatch}, nil
	}

	if card.Status != model.ECardStatusActive {
		return &model.ECardVerification{Reason: model.ECardReasonInactive, Card: card}, nil
	}

	if !s.now().Before(card.ExpiresAt) {
		return &model.ECardVerification{Reason: model.ECardReasonExpired, Card: card}, nil
	}

	return &model.ECardVerification{Valid: true, Card: card}, nil
}
