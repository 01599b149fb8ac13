// Package handler provides the HTTP handlers of the payments service.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"

	errorutils "github.com/etruckzm/etruck-go/libs/errors"
	"github.com/etruckzm/etruck-go/libs/handlers"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/libs/requestutils"
	"github.com/etruckzm/etruck-go/libs/useragent"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// Machine readable reason codes of error responses.
const (
	codeInvalidRequest     = "invalid_request"
	codeNotFound           = "not_found"
	codeDuplicateReference = "duplicate_reference"
	codeInvalidSignature   = "invalid_signature"
	codeInternal           = "internal_error"
)

type paymentService interface {
	Initiate(ctx context.Context, req model.InitiateRequest) (*model.InitiateResult, error)
	Verify(ctx context.Context, ref string) (*model.Record, error)
	Status(ctx context.Context, ref string) (*model.Record, error)
	Watching(ref string) bool
	CancelWatch(ref string) bool
}

type Payment struct {
	svc   paymentService
	valid *validator.Validate
}

func NewPayment(svc paymentService) *Payment {
	return &Payment{svc: svc, valid: validator.New()}
}

func (h *Payment) Create(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ctx := r.Context()

	var req model.CreatePaymentRequest
	if err := requestutils.ReadJSON(ctx, r.Body, &req); err != nil {
		return handlers.CodedError(codeInvalidRequest, "Error in request body", http.StatusBadRequest, nil)
	}

	if aerr := h.validate(ctx, &req); aerr != nil {
		return aerr
	}

	lg := logging.Logger(ctx, "payments").With().
		Str("func", "CreatePayment").
		Str("platform", useragent.ParsePlatform(r.UserAgent())).
		Bool("mobile", useragent.IsMobile(r.UserAgent())).
		Logger()

	if req.Amount != nil {
		lg.Debug().Str("amount", req.Amount.String()).Msg("ignoring client supplied amount")
	}

	ireq, err := req.ToInitiateRequest()
	if err != nil {
		return handlers.ValidationError("request body", map[string]string{"request": err.Error()})
	}

	result, err := h.svc.Initiate(ctx, ireq)
	if err != nil {
		lg.Error().Err(err).Msg("failed to initiate payment")
		return toAppError(err)
	}

	return handlers.RenderContent(ctx, model.NewCreatePaymentResponse(result), w, http.StatusCreated)
}

func (h *Payment) Verify(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ctx := r.Context()

	var req model.VerifyPaymentRequest
	if err := requestutils.ReadJSON(ctx, r.Body, &req); err != nil {
		return handlers.CodedError(codeInvalidRequest, "Error in request body", http.StatusBadRequest, nil)
	}

	if aerr := h.validate(ctx, &req); aerr != nil {
		return aerr
	}

	rec, err := h.svc.Verify(ctx, req.Reference)
	if err != nil {
		return toAppError(err)
	}

	return handlers.RenderContent(ctx, rec.Snapshot(h.svc.Watching(rec.Reference)), w, http.StatusOK)
}

func (h *Payment) Get(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ctx := r.Context()

	rec, err := h.svc.Status(ctx, chi.URLParam(r, "reference"))
	if err != nil {
		return toAppError(err)
	}

	return handlers.RenderContent(ctx, rec.Snapshot(h.svc.Watching(rec.Reference)), w, http.StatusOK)
}

// CancelWatch stops polling for a payment whose status view was closed.
func (h *Payment) CancelWatch(w http.ResponseWriter, r *http.Request) *handlers.AppError {
	ref := chi.URLParam(r, "reference")

	if h.svc.CancelWatch(ref) {
		logging.Logger(r.Context(), "payments").Debug().Str("reference", ref).Msg("reconciliation cancelled")
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

func (h *Payment) validate(ctx context.Context, req interface{}) *handlers.AppError {
	return validateStruct(ctx, h.valid, req)
}

func validateStruct(ctx context.Context, valid *validator.Validate, req interface{}) *handlers.AppError {
	if err := valid.StructCtx(ctx, req); err != nil {
		verrs, ok := collectValidationErrors(err)
		if !ok {
			return handlers.CodedError(codeInvalidRequest, "Failed to validate request", http.StatusBadRequest, nil)
		}

		return handlers.ValidationError("request body", verrs)
	}

	return nil
}

// toAppError maps service errors onto responses with reason codes.
func toAppError(err error) *handlers.AppError {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		code := http.StatusBadGateway
		switch gerr.Kind {
		case gateway.Unavailable:
			code = http.StatusServiceUnavailable
		case gateway.Rejected:
			code = http.StatusUnprocessableEntity
		}

		return handlers.CodedError(string(gerr.Kind), "Payment could not be started", code, map[string]string{
			"reason": gerr.Reason(),
		})
	}

	switch {
	case errors.Is(err, model.ErrInvalidCategory),
		errors.Is(err, model.ErrInvalidMethod),
		errors.Is(err, model.ErrPayerNameRequired),
		errors.Is(err, model.ErrPayerPhoneRequired),
		errors.Is(err, model.ErrSubjectRequired),
		errors.Is(err, model.ErrUnsupportedCurrency),
		errors.Is(err, model.ErrInvalidAmount):
		return handlers.ValidationError("request body", map[string]string{"request": err.Error()})

	case errorutils.IsErrNotFound(err):
		return handlers.CodedError(codeNotFound, "Not found", http.StatusNotFound, nil)

	case errorutils.IsErrAlreadyExists(err):
		return &handlers.AppError{
			Cause:     err,
			Message:   "Payment reference collision",
			ErrorCode: codeDuplicateReference,
			Code:      http.StatusInternalServerError,
		}

	default:
		return &handlers.AppError{
			Cause:     err,
			Message:   model.ErrSomethingWentWrong.Error(),
			ErrorCode: codeInternal,
			Code:      http.StatusInternalServerError,
		}
	}
}

func collectValidationErrors(err error) (map[string]string, bool) {
	var verr validator.ValidationErrors
	if !errors.As(err, &verr) {
		return nil, false
	}

	result := make(map[string]string, len(verr))
	for i := range verr {
		result[verr[i].Field()] = verr[i].Error()
	}

	return result, true
}
