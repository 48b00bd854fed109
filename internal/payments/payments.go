package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/currency"
	"donation-api/internal/models"
	"donation-api/internal/reconcile"
)

// Provider names as stored in donations.payment_provider.
const (
	ProviderStripe      = "stripe"
	ProviderFlutterwave = "flutterwave"
	ProviderMidtrans    = "midtrans"
)

// DefaultCampaignTag is sent to processors when the caller names no campaign.
const DefaultCampaignTag = "youth_health_education"

// IntentRequest is a validated request to start a charge.
type IntentRequest struct {
	Amount    decimal.Decimal
	Currency  string
	TxRef     string
	Tier      string
	Campaign  string
	Recurring bool
	Donor     reconcile.Donor
}

// Intent is what the browser needs to render the provider's payment widget.
type Intent struct {
	Provider        string          `json:"provider"`
	TxRef           string          `json:"tx_ref"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	Token           string          `json:"token,omitempty"`
	RedirectURL     string          `json:"redirect_url,omitempty"`
	Config          map[string]any  `json:"config,omitempty"`
}

// Payment is the processor's authoritative view of one charge.
type Payment struct {
	Provider      string
	TransactionID string
	TxRef         string
	// RawStatus is the processor's own status word.
	RawStatus     string
	Status        models.Status
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Donor         reconcile.Donor
	// Message is the processor's failure message, shown to the donor verbatim.
	Message  string
	Metadata models.Metadata
}

// Event converts the payment into a reconciliation event.
func (p *Payment) Event(source reconcile.Source) reconcile.Event {
	return reconcile.Event{
		Provider:      p.Provider,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		TxRef:         p.TxRef,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: p.PaymentMethod,
		Donor:         p.Donor,
		Metadata:      p.Metadata,
		Source:        source,
	}
}

// Initiator creates a pending charge with a processor.
type Initiator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

// StatusFetcher re-reads a charge from the processor.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, id string) (*Payment, error)
}

// SignatureVerifier authenticates a webhook delivery.
type SignatureVerifier interface {
	VerifySignature(header http.Header, body []byte) error
}

// NewTxRef generates the local correlation reference embedded in intents.
func NewTxRef() string {
	return "nr_" + uuid.NewString()
}

// Validate checks the amount and currency of an intent request and fills in
// the tx_ref when the caller did not supply one.
func (r *IntentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("invalid amount %s: %w", r.Amount, apperr.ErrValidation)
	}
	r.Currency = currency.Normalize(r.Currency)
	if !currency.Supported(r.Currency) {
		return fmt.Errorf("unsupported currency %q: %w", r.Currency, apperr.ErrValidation)
	}
	if r.TxRef == "" {
		r.TxRef = NewTxRef()
	}
	if r.Campaign == "" {
		r.Campaign = DefaultCampaignTag
	}
	return nil
}

func (r IntentRequest) description() string {
	tier := r.Tier
	if tier == "" {
		tier = "General Donation"
	}
	return "Donation - " + tier
}

func (r IntentRequest) metadata() map[string]string {
	return map[string]string{
		"tx_ref":      r.TxRef,
		"campaign":    r.Campaign,
		"donor_name":  r.Donor.Name,
		"donor_email": r.Donor.Email,
		"tier":        r.Tier,
		"recurring":   fmt.Sprintf("%t", r.Recurring),
		"source":      "website",
	}
}

func processorErr(provider, msg string) error {
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Errorf("%s: %s: %w", provider, msg, apperr.ErrProcessor)
}

// ErrUnknownPayment marks a processor error meaning the payment was never
// created on its side, such as a checkout closed before paying.
var ErrUnknownPayment = errors.New("payment unknown to processor")

type unknownPaymentError struct{ err error }

func (e unknownPaymentError) Error() string   { return e.err.Error() }
func (e unknownPaymentError) Unwrap() []error { return []error{e.err, ErrUnknownPayment} }

func unknownPaymentErr(provider, msg string) error {
	return unknownPaymentError{err: processorErr(provider, msg)}
}

func notConfigured(provider, what string) error {
	return fmt.Errorf("%s %s missing: %w", provider, what, apperr.ErrNotConfigured)
}

// ProcessorMessage returns the processor's own message from an error built
// by this package, without the taxonomy suffix.
func ProcessorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if errors.Is(err, apperr.ErrProcessor) {
		msg = strings.TrimSuffix(msg, ": "+apperr.ErrProcessor.Error())
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
	}
	return msg
}
