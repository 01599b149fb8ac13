// Package model provides data that the payments service operates on.
package model

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/shengdoushi/base58"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"

	"github.com/etruckzm/etruck-go/libs/datastore"
)

const (
	ErrPaymentNotFound       Error = "model: payment not found"
	ErrECardNotFound         Error = "model: e-card not found"
	ErrNoRowsChangedPayment  Error = "model: no rows changed in payments"
	ErrDuplicateReference    Error = "model: duplicate reference"
	ErrInvalidSignature      Error = "model: invalid webhook signature"
	ErrInvalidCategory       Error = "model: invalid service category"
	ErrInvalidMethod         Error = "model: invalid payment method"
	ErrUnsupportedCurrency   Error = "model: unsupported currency"
	ErrInvalidAmount         Error = "model: amount must be greater than zero"
	ErrPriceNotConfigured    Error = "model: no price configured for service category"
	ErrPayerPhoneRequired    Error = "model: payer phone is required for mobile money"
	ErrPayerNameRequired     Error = "model: payer name is required"
	ErrSubjectRequired       Error = "model: subject is required for the service category"
	ErrInvalidTransition     Error = "model: invalid status transition"
	ErrDependentUpdateFailed Error = "model: dependent update failed"
	ErrEffectNotConfigured   Error = "model: no effect configured for service category"
	ErrUnknownProvider       Error = "model: unknown webhook provider"
	ErrIgnoredEvent          Error = "model: webhook event ignored"
	ErrSomethingWentWrong    Error = "something went wrong"
)

// Reasons recorded on failed and expired payments.
const (
	ReasonAmountMismatch   = "amount_mismatch"
	ReasonAttemptsExceeded = "verification_attempts_exhausted"
	ReasonGatewayFailed    = "gateway_reported_failure"
)

// DispatchPending is the dispatch_error of a succeeded record whose side effect has not been confirmed yet.
const DispatchPending = "dispatch_pending"

// Error represents a model error.
type Error string

func (e Error) Error() string {
	return string(e)
}

// NotFoundError reports whether e is one of the not found errors.
func (e Error) NotFoundError() bool {
	return e == ErrPaymentNotFound || e == ErrECardNotFound
}

// AlreadyExistsError reports whether e signals a uniqueness violation.
func (e Error) AlreadyExistsError() bool {
	return e == ErrDuplicateReference
}

// InvalidSignature reports whether e signals a failed webhook signature check.
func (e Error) InvalidSignature() bool {
	return e == ErrInvalidSignature
}

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusInitiated           Status = "initiated"
	StatusPendingConfirmation Status = "pending-confirmation"
	StatusSucceeded           Status = "succeeded"
	StatusFailed              Status = "failed"
	StatusExpired             Status = "expired"
)

// Transitions lists the statuses each status may move to, terminal statuses have none.
var Transitions = map[Status][]Status{
	StatusInitiated:           {StatusPendingConfirmation, StatusSucceeded, StatusFailed, StatusExpired},
	StatusPendingConfirmation: {StatusSucceeded, StatusFailed, StatusExpired},
	StatusSucceeded:           {},
	StatusFailed:              {},
	StatusExpired:             {},
}

// NonTerminalStatuses are the statuses a compare-and-transition may start from.
func NonTerminalStatuses() []string {
	return []string{string(StatusInitiated), string(StatusPendingConfirmation)}
}

// SourcesOf returns the statuses that may move to to, in lifecycle order.
func SourcesOf(to Status) []string {
	var result []string
	for _, s := range []Status{StatusInitiated, StatusPendingConfirmation, StatusSucceeded, StatusFailed, StatusExpired} {
		if s.CanTransitionTo(to) {
			result = append(result, string(s))
		}
	}
	return result
}

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := Transitions[s]
	return ok
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	next, ok := Transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether s may move to to.
func (s Status) CanTransitionTo(to Status) bool {
	return slices.Contains(Transitions[s], to)
}

// Category is the government service a payment pays for.
type Category string

const (
	CategoryECard          Category = "e-card"
	CategoryRoadTax        Category = "road-tax"
	CategoryInsurance      Category = "insurance"
	CategoryLicenseRenewal Category = "license-renewal"
)

// Categories lists every service category.
func Categories() []Category {
	return []Category{CategoryECard, CategoryRoadTax, CategoryInsurance, CategoryLicenseRenewal}
}

// ParseCategory validates raw as a service category.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !slices.Contains(Categories(), c) {
		return "", ErrInvalidCategory
	}
	return c, nil
}

func (c Category) String() string {
	return string(c)
}

// Method is the payment method the payer chose.
type Method string

const (
	MethodMobileMoneyA Method = "mobile-money-A"
	MethodMobileMoneyB Method = "mobile-money-B"
	MethodMobileMoneyC Method = "mobile-money-C"
	MethodCard         Method = "card"
)

var methodAliases = map[string]Method{
	"mobile-money-a": MethodMobileMoneyA,
	"mtn":            MethodMobileMoneyA,
	"mobile-money-b": MethodMobileMoneyB,
	"airtel":         MethodMobileMoneyB,
	"mobile-money-c": MethodMobileMoneyC,
	"zamtel":         MethodMobileMoneyC,
	"card":           MethodCard,
}

// ParseMethod accepts either the method name or the network name (mtn, airtel, zamtel).
func ParseMethod(raw string) (Method, error) {
	m, ok := methodAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrInvalidMethod
	}
	return m, nil
}

func (m Method) String() string {
	return string(m)
}

// IsMobileMoney reports whether m confirms asynchronously through a mobile money network.
func (m Method) IsMobileMoney() bool {
	return m == MethodMobileMoneyA || m == MethodMobileMoneyB || m == MethodMobileMoneyC
}

// Network returns the mobile network operator behind m.
func (m Method) Network() string {
	switch m {
	case MethodMobileMoneyA:
		return "mtn"
	case MethodMobileMoneyB:
		return "airtel"
	case MethodMobileMoneyC:
		return "zamtel"
	default:
		return ""
	}
}

// Payer is the counterpart the gateway charges.
type Payer struct {
	Name  string `json:"name" db:"payer_name"`
	Email string `json:"email" db:"payer_email"`
	Phone string `json:"phone" db:"payer_phone"`
}

// Validate checks the payer for method.
func (p Payer) Validate(method Method) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrPayerNameRequired
	}
	if method.IsMobileMoney() && strings.TrimSpace(p.Phone) == "" {
		return ErrPayerPhoneRequired
	}
	return nil
}

// RawPayload is the opaque last known provider response.
type RawPayload []byte

// Value stores the payload as jsonb, payloads that are not json are stored as a json string.
func (p RawPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	if json.Valid(p) {
		return string(p), nil
	}
	b, err := json.Marshal(string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan copies the stored payload.
func (p *RawPayload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = RawPayload(v)
	default:
		return fmt.Errorf("failed to scan RawPayload from %T", value)
	}
	return nil
}

// MarshalJSON renders the payload inline.
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	if json.Valid(p) {
		return p, nil
	}
	return json.Marshal(string(p))
}

// Record is one attempted payment.
type Record struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Reference string    `json:"reference" db:"reference"`
	Payer
	Category Category `json:"serviceCategory" db:"category"`
	// Subject identifies what the payment is for, the driver licence number or vehicle plate.
	Subject              string               `json:"subject,omitempty" db:"subject"`
	Amount               decimal.Decimal      `json:"amount" db:"amount"`
	Currency             string               `json:"currency" db:"currency"`
	Method               Method               `json:"method" db:"method"`
	Status               Status               `json:"status" db:"status"`
	GatewayTransactionID datastore.NullString `json:"gatewayTransactionId" db:"gateway_tx_id"`
	FailureReason        datastore.NullString `json:"failureReason,omitempty" db:"failure_reason"`
	RawGatewayPayload    RawPayload           `json:"-" db:"raw_gateway_payload"`
	Dispatched           bool                 `json:"-" db:"dispatched"`
	DispatchError        datastore.NullString `json:"-" db:"dispatch_error"`
	PollAttempts         int                  `json:"-" db:"poll_attempts"`
	CreatedAt            time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time            `json:"updatedAt" db:"updated_at"`
}

// IsTerminal reports whether the record reached a final status.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// ProviderRef returns the gateway's handle for this payment, empty until acknowledged.
func (r *Record) ProviderRef() string {
	if !r.GatewayTransactionID.Valid {
		return ""
	}
	return r.GatewayTransactionID.String
}

// RecordNew holds what is needed to create a Record.
type RecordNew struct {
	Reference string
	Payer     Payer
	Category  Category
	Subject   string
	Amount    decimal.Decimal
	Currency  string
	Method    Method
}

// NewReference returns a reference of the form etruck_<unix millis>_<9 base58 chars>.
func NewReference(now time.Time) (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to read random reference suffix: %w", err)
	}

	enc := base58.Encode(buf[:], base58.BitcoinAlphabet)
	if len(enc) < 9 {
		return "", errors.New("model: reference suffix too short")
	}

	return "etruck_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + enc[len(enc)-9:], nil
}

// TransitionRequest describes a compare-and-transition to To.
type TransitionRequest struct {
	To     Status
	Reason string
	// ProviderRef is stored only when the record has none yet.
	ProviderRef string
	// Raw replaces the stored payload when not empty.
	Raw RawPayload
}

// InitiateRequest is a validated request to start a payment.
type InitiateRequest struct {
	Category Category
	Payer    Payer
	Method   Method
	Subject  string
}

// Normalize returns r with its enumerations parsed and its payer validated.
//
// An e-card is issued to a driver licence, so the subject is required for CategoryECard.
func (r InitiateRequest) Normalize() (InitiateRequest, error) {
	cat, err := ParseCategory(r.Category.String())
	if err != nil {
		return InitiateRequest{}, err
	}

	method, err := ParseMethod(r.Method.String())
	if err != nil {
		return InitiateRequest{}, err
	}

	if err := r.Payer.Validate(method); err != nil {
		return InitiateRequest{}, err
	}

	subject := strings.TrimSpace(r.Subject)
	if cat == CategoryECard && subject == "" {
		return InitiateRequest{}, ErrSubjectRequired
	}

	r.Category, r.Method, r.Subject = cat, method, subject

	return r, nil
}

// InitiateResult is what the caller needs to continue with the gateway.
type InitiateResult struct {
	Record         *Record `json:"record"`
	RedirectHandle string  `json:"redirectHandle,omitempty"`
}

// StatusSnapshot is the caller visible view of a payment.
type StatusSnapshot struct {
	Reference     string          `json:"reference"`
	Status        Status          `json:"status"`
	Category      Category        `json:"serviceCategory"`
	Method        Method          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FailureReason string          `json:"failureReason,omitempty"`
	Watching      bool            `json:"watching"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Snapshot builds the status view of r.
func (r *Record) Snapshot(watching bool) StatusSnapshot {
	return StatusSnapshot{
		Reference:     r.Reference,
		Status:        r.Status,
		Category:      r.Category,
		Method:        r.Method,
		Amount:        r.Amount,
		Currency:      r.Currency,
		FailureReason: r.FailureReason.String,
		Watching:      watching,
		UpdatedAt:     r.UpdatedAt,
	}
}
