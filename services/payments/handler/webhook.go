package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	errorutils "github.com/etruckzm/etruck-go/libs/errors"
	"github.com/etruckzm/etruck-go/libs/handlers"
	"github.com/etruckzm/etruck-go/libs/requestutils"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const reqBodyLimit1MB = 1 << 20

type webhookService interface {
	ApplyWebhook(ctx context.Context, provider string, body []byte, header http.Header) error
}

type Webhook struct {
	svc webhookService
}

func NewWebhook(svc webhookService) *Webhook {
	return &Webhook{svc: svc}
}

// Handle answers 401 for a bad signature and 200 for everything authentic, duplicates included.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ctx := r.Context()

	body, err := requestutils.ReadWithLimit(ctx, r.Body, reqBodyLimit1MB)
	if err != nil {
		return handlers.CodedError(codeInvalidRequest, "Error in request body", http.StatusBadRequest, nil)
	}

	if err := h.svc.ApplyWebhook(ctx, chi.URLParam(r, "provider"), body, r.Header); err != nil {
		switch {
		case errorutils.IsErrInvalidSignature(err):
			return handlers.CodedError(codeInvalidSignature, "Invalid signature", http.StatusUnauthorized, nil)
		case errors.Is(err, model.ErrUnknownProvider):
			return handlers.CodedError(codeNotFound, "Unknown provider", http.StatusNotFound, nil)
		default:
			return &handlers.AppError{
				Cause:     err,
				Message:   "Failed to process webhook",
				ErrorCode: codeInternal,
				Code:      http.StatusInternalServerError,
			}
		}
	}

	return handlers.RenderContent(ctx, map[string]string{"status": "accepted"}, w, http.StatusOK)
}
