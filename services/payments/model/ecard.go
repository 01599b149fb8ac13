package model

import (
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
)

const (
	ECardStatusActive  = "active"
	ECardStatusRevoked = "revoked"
)

// Reasons reported by e-card verification.
const (
	ECardReasonNotFound         = "not_found"
	ECardReasonInvalidSignature = "invalid_signature"
	ECardReasonMismatch         = "details_mismatch"
	ECardReasonInactive         = "inactive"
	ECardReasonExpired          = "expired"
)

// ECard is the digital credential border agents check.
type ECard struct {
	ID               uuid.UUID `json:"-" db:"id"`
	CardID           string    `json:"cardId" db:"card_id"`
	PaymentReference string    `json:"paymentReference" db:"payment_reference"`
	DriverName       string    `json:"driverName" db:"driver_name"`
	LicenseNumber    string    `json:"licenseNumber" db:"license_number"`
	Status           string    `json:"status" db:"status"`
	IssuedAt         time.Time `json:"issuedAt" db:"issued_at"`
	ExpiresAt        time.Time `json:"expiresAt" db:"expires_at"`
	Signature        string    `json:"signature" db:"signature"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// CanonicalECardFields is the message covered by the card signature.
func CanonicalECardFields(cardID, driver, license string, issued, expires time.Time) []byte {
	return []byte(strings.Join([]string{
		cardID,
		driver,
		license,
		issued.UTC().Format(time.RFC3339),
		expires.UTC().Format(time.RFC3339),
	}, "|"))
}

// CanonicalFields returns the signed message for c.
func (c *ECard) CanonicalFields() []byte {
	return CanonicalECardFields(c.CardID, c.DriverName, c.LicenseNumber, c.IssuedAt, c.ExpiresAt)
}

// QR renders the payload encoded in the card's QR code.
func (c *ECard) QR() ECardQR {
	return ECardQR{
		ID:      c.CardID,
		Driver:  c.DriverName,
		License: c.LicenseNumber,
		Issued:  c.IssuedAt.UTC(),
		Expires: c.ExpiresAt.UTC(),
		Status:  c.Status,
		Sig:     c.Signature,
	}
}

// ECardQR is the payload a border agent scans.
type ECardQR struct {
	ID      string    `json:"id" validate:"required"`
	Driver  string    `json:"driver" validate:"required"`
	License string    `json:"license" validate:"required"`
	Issued  time.Time `json:"issued" validate:"required"`
	Expires time.Time `json:"expires" validate:"required"`
	Status  string    `json:"status"`
	Sig     string    `json:"sig" validate:"required,hexadecimal"`
}

// ECardVerification is the outcome of checking a scanned card.
type ECardVerification struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Card   *ECard `json:"card,omitempty"`
}

// ECardNew holds what is needed to issue a card.
type ECardNew struct {
	CardID           string
	PaymentReference string
	DriverName       string
	LicenseNumber    string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Signature        string
}

// Renewal is a compliance renewal paid for through a payment.
type Renewal struct {
	ID               uuid.UUID `json:"id" db:"id"`
	PaymentReference string    `json:"paymentReference" db:"payment_reference"`
	Category         Category  `json:"serviceCategory" db:"category"`
	Subject          string    `json:"subject" db:"subject"`
	ValidFrom        time.Time `json:"validFrom" db:"valid_from"`
	ValidUntil       time.Time `json:"validUntil" db:"valid_until"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}
