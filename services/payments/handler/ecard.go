package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"

	"github.com/etruckzm/etruck-go/libs/handlers"
	"github.com/etruckzm/etruck-go/libs/requestutils"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

type ecardService interface {
	GetECard(ctx context.Context, cardID string) (*model.ECard, error)
	VerifyECard(ctx context.Context, qr model.ECardQR) (*model.ECardVerification, error)
}

type ECard struct {
	svc   ecardService
	valid *validator.Validate
}

func NewECard(svc ecardService) *ECard {
	return &ECard{svc: svc, valid: validator.New()}
}

func (h *ECard) Get(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ctx := r.Context()

	card, err := h.svc.GetECard(ctx, chi.URLParam(r, "cardID"))
	if err != nil {
		return toAppError(err)
	}

	return handlers.RenderContent(ctx, card, w, http.StatusOK)
}

// Verify checks a scanned QR payload, an invalid card is a 200 with valid set to false.
func (h *ECard) Verify(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ctx := r.Context()

	var qr model.ECardQR
	if err := requestutils.ReadJSON(ctx, r.Body, &qr); err != nil {
		return handlers.CodedError(codeInvalidRequest, "Error in request body", http.StatusBadRequest, nil)
	}

	if aerr := validateStruct(ctx, h.valid, &qr); aerr != nil {
		return aerr
	}

	result, err := h.svc.VerifyECard(ctx, qr)
	if err != nil {
		return toAppError(err)
	}

	return handlers.RenderContent(ctx, result, w, http.StatusOK)
}
