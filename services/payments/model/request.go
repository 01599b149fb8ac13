package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the body of an initiation request.
type CreatePaymentRequest struct {
	ServiceCategory string       `json:"serviceCategory" validate:"required"`
	Method          string       `json:"method" validate:"required"`
	Payer           PayerRequest `json:"payerIdentity" validate:"required"`
	Subject         string       `json:"subject" validate:"omitempty,max=64"`

	// Amount is never trusted, prices come from the price table.
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// PayerRequest identifies the payer in a CreatePaymentRequest.
type PayerRequest struct {
	Name  string `json:"name" validate:"required,max=128"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
}

// ToInitiateRequest parses the enumerations of r.
func (r *CreatePaymentRequest) ToInitiateRequest() (InitiateRequest, error) {
	cat, err := ParseCategory(r.ServiceCategory)
	if err != nil {
		return InitiateRequest{}, err
	}

	method, err := ParseMethod(r.Method)
	if err != nil {
		return InitiateRequest{}, err
	}

	return InitiateRequest{
		Category: cat,
		Method:   method,
		Subject:  strings.TrimSpace(r.Subject),
		Payer: Payer{
			Name:  strings.TrimSpace(r.Payer.Name),
			Email: strings.TrimSpace(r.Payer.Email),
			Phone: strings.TrimSpace(r.Payer.Phone),
		},
	}, nil
}

// CreatePaymentResponse is returned by a successful initiation.
type CreatePaymentResponse struct {
	Reference      string          `json:"reference"`
	RedirectHandle string          `json:"redirectHandle,omitempty"`
	Status         Status          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// NewCreatePaymentResponse builds the response for res.
func NewCreatePaymentResponse(res *InitiateResult) CreatePaymentResponse {
	return CreatePaymentResponse{
		Reference:      res.Record.Reference,
		RedirectHandle: res.RedirectHandle,
		Status:         res.Record.Status,
		Amount:         res.Record.Amount,
		Currency:       res.Record.Currency,
	}
}

// VerifyPaymentRequest asks for a fresh check of a payment.
type VerifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}
